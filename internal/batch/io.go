package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// coordinateColumns must appear in every trip CSV header. Other columns may
// be absent and decode as zero values.
var coordinateColumns = []string{"pickup_latitude", "pickup_longitude", "dropoff_latitude", "dropoff_longitude"}

// ReadTrips decodes a headed CSV of trips.
func ReadTrips(r io.Reader) ([]TripRecord, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("trip CSV is empty")
		}
		return nil, fmt.Errorf("read trip CSV header: %w", err)
	}

	var missing []string
	for _, col := range coordinateColumns {
		if !slices.Contains(dec.Header(), col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("trip CSV is missing columns: %s", strings.Join(missing, ", "))
	}

	var trips []TripRecord
	if err := dec.Decode(&trips); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode trip CSV: %w", err)
	}
	return trips, nil
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, recs []DerivedRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(recs) == 0 {
		if err := enc.EncodeHeader(DerivedRecord{}); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	} else if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// parquetParallelism is the number of goroutines parquet-go uses to encode
// pages.
const parquetParallelism = 4

// WriteParquet writes records to a Snappy-compressed Parquet file at path.
func WriteParquet(path string, recs []DerivedRecord) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(DerivedRecord), parquetParallelism)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range recs {
		if err := pw.Write(recs[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalise parquet: %w", err)
	}
	return nil
}

// ReadParquet loads every record from a file written by WriteParquet.
func ReadParquet(path string) ([]DerivedRecord, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(DerivedRecord), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	recs := make([]DerivedRecord, int(pr.GetNumRows()))
	if err := pr.Read(&recs); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return recs, nil
}

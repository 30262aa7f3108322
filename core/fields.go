package core

// FieldNames names the raw coordinate inputs and the features derived from
// them.
type FieldNames struct {
	PickupLatitude   string
	PickupLongitude  string
	DropoffLatitude  string
	DropoffLongitude string
	Distance         string
	Bearing          string
}

// DefaultFieldNames returns the names used by the training pipeline.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		PickupLatitude:   "pickup_latitude",
		PickupLongitude:  "pickup_longitude",
		DropoffLatitude:  "dropoff_latitude",
		DropoffLongitude: "dropoff_longitude",
		Distance:         "distance",
		Bearing:          "bearing",
	}
}

func (f FieldNames) coordinates() []string {
	return []string{f.PickupLatitude, f.PickupLongitude, f.DropoffLatitude, f.DropoffLongitude}
}

// withDefaults fills empty names from DefaultFieldNames.
func (f FieldNames) withDefaults() FieldNames {
	d := DefaultFieldNames()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return FieldNames{
		PickupLatitude:   pick(f.PickupLatitude, d.PickupLatitude),
		PickupLongitude:  pick(f.PickupLongitude, d.PickupLongitude),
		DropoffLatitude:  pick(f.DropoffLatitude, d.DropoffLatitude),
		DropoffLongitude: pick(f.DropoffLongitude, d.DropoffLongitude),
		Distance:         pick(f.Distance, d.Distance),
		Bearing:          pick(f.Bearing, d.Bearing),
	}
}

package types

// Record is a backend-owned row decoded into its typed struct. The id is
// stable for the record's whole lifecycle.
type Record interface {
	RecordID() string
}

package components

// Default field names are used by components to know the names of input and output fields.
var Defaults = struct {
	ChanField4FileName    string // the default map key that contains the object keys found in storage, used by input and output Channels.
	ChanField4PartitionID string // the default map key that contains the partition identifier parsed from an object key.
}{
	ChanField4FileName:    "#DataFileName",
	ChanField4PartitionID: "#PartitionId",
}

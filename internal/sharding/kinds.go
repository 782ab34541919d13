package sharding

// Kind strings tag every message that crosses internal/transport's wire
// boundary (spec.md §6), so a sending Region/Coordinator and the receiving
// ServeMux agree on the concrete type to decode an Envelope's Body into
// without either side importing the other.
const (
	KindRegister        = "Register"
	KindRegisterProxy   = "RegisterProxy"
	KindRegisterAck     = "RegisterAck"
	KindGetShardHome    = "GetShardHome"
	KindShardHome       = "ShardHome"
	KindHostShard       = "HostShard"
	KindShardStarted    = "ShardStarted"
	KindBeginHandOff    = "BeginHandOff"
	KindBeginHandOffAck = "BeginHandOffAck"
	KindHandOff         = "HandOff"
	KindShardStopped    = "ShardStopped"
	KindForward         = "Forward"
)

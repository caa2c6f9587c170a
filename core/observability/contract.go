package observability

// Attribute keys shared by the spans, metrics and resource recorded here.
const (
	AttrProcessRole    = "hypercluster.process.role"
	AttrWorkerSlot     = "hypercluster.worker.slot"
	AttrExitStatus     = "process.exit.status"
	AttrRealtimeSource = "realtime.source"
)

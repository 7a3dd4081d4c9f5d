package domain

// Backend names used by RequiredBackend and the discovery service.
const (
	BackendComfyUI    = "comfyui"
	BackendRunningHub = "runninghub"
)

// KnownBackends lists every backend the discovery service probes.
func KnownBackends() []string {
	return []string{BackendComfyUI, BackendRunningHub}
}

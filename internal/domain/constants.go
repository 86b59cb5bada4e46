package domain

const (
	DefaultDiscoveryBaseURL        = "http://n8n:5678"
	DefaultDiscoveryTTLSeconds     = 60
	DefaultDiscoveryTimeoutSeconds = 15
	DefaultCallTimeoutSeconds      = 30
	DefaultBatchTimeoutSeconds     = 60
	DefaultTelemetryListenAddress  = "0.0.0.0:9090"
	DefaultLogLevel                = "info"

	// ToolCallPrefix is the conventional namespace upstream models put in
	// front of function-style tool names.
	ToolCallPrefix = "functions."
)

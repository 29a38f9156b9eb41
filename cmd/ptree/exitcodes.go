package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (unreadable or invalid config)
	ExitDataError   = 3 // Data error (malformed input, validation failure)
	ExitAPIError    = 4 // Semantic Scholar request failed or root not found
	ExitExportError = 5 // Writing or loading an export failed
)

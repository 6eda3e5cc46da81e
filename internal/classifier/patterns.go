package classifier

// failureKeywords is the fixed set of substrings denoting failure. The mixed
// casing is deliberate: these are the exact variants emitted by the runtimes
// behind the watched services (Go panics, Python tracebacks, generic error
// loggers). This is intentionally a coarse filter; precision beyond the
// per-service suppression rule is out of scope.
var failureKeywords = []string{
	"error", "Error", "ERROR",
	"exception", "Exception", "EXCEPTION",
	"traceback", "Traceback",
	"panic", "Panic", "PANIC",
	"fatal", "Fatal", "FATAL",
	"crash", "Crash", "CRASH",
}

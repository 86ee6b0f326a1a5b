package plog

// Sink receives one line-oriented event: a short category tag and a detail string.
// Sinks are called synchronously from the caller's goroutine.
type Sink func(category, detail string)

// NewSink returns a Sink that writes through the global logger. Categories listed in
// warnCategories are logged at WARN, everything else at DEBUG.
func NewSink(warnCategories ...string) Sink {
	warn := make(map[string]struct{}, len(warnCategories))
	for _, c := range warnCategories {
		warn[c] = struct{}{}
	}
	return func(category, detail string) {
		if _, ok := warn[category]; ok {
			Warn(category, "detail", detail)
			return
		}
		Debug(category, "detail", detail)
	}
}

// DiscardSink drops every event.
func DiscardSink(string, string) {}

package protocol

// StaticSource serves a fixed, in-memory joke list.  Each call returns
// a copy so sessions never share a backing array.
type StaticSource []Joke

// ListJokes returns a copy of the jokes.
func (s StaticSource) ListJokes() []Joke {
	out := make([]Joke, len(s))
	copy(out, s)
	return out
}

// DefaultJokes is served when no jokes are configured.
var DefaultJokes = StaticSource{ //nolint:gochecknoglobals
	{Clue: "Knock knock", Answer: "Who's there?"},
	{Clue: "Lettuce", Answer: "Lettuce who?"},
	{Clue: "Lettuce in, it's cold out here!", Answer: "Ha ha"},
	{Clue: "Knock knock", Answer: "Who's there?"},
	{Clue: "Cow says", Answer: "Cow says who?"},
	{Clue: "No silly, a cow says moo!", Answer: "Ha ha"},
}

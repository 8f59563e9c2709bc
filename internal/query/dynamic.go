package query

// Unescaped constructs a server-only dynamic fragment from a literal string:
// it carries no fingerprint and its text is used verbatim. Session code
// never constructs these; callers outside the server runtime should treat
// this constructor as forbidden (enforced by runtime.Context, not by this
// package).
func Unescaped(text string) *Query {
	return &Query{
		Text:    text,
		Params:  NewParamSchema(),
		Dynamic: true,
	}
}

package fetch

import "fmt"

// StatusTransportError is the StatusCode of a KindHTTPError outcome that never
// produced an HTTP response (DNS, refused connection, TLS, bad scheme).
const StatusTransportError = -1

// Kind tags the result of a single fetch.
type Kind int

const (
	KindSuccess Kind = iota
	KindDisallowed
	KindTimeout
	KindHTTPError
	KindUnsupportedContentType
	KindParseFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindDisallowed:
		return "disallowed"
	case KindTimeout:
		return "timeout"
	case KindHTTPError:
		return "http_error"
	case KindUnsupportedContentType:
		return "unsupported_content_type"
	case KindParseFailure:
		return "parse_failure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the tagged result of Fetcher.Fetch. Only the fields relevant to
// Kind are set: Text and ByteLength for KindSuccess, StatusCode for
// KindHTTPError, ContentType for KindUnsupportedContentType.
type Outcome struct {
	Kind        Kind
	Title       string
	Text        string
	ByteLength  int
	StatusCode  int
	ContentType string
	// LowConfidence is copied from the extractor for short documents.
	LowConfidence bool
	Err           error
}

// OK reports whether the outcome carries extracted text.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Transient reports whether retrying the same URL could plausibly succeed.
func (o Outcome) Transient() bool {
	switch o.Kind {
	case KindTimeout:
		return true
	case KindHTTPError:
		return o.StatusCode == StatusTransportError || (o.StatusCode >= 500 && o.StatusCode <= 599)
	}
	return false
}

// Reason is a short human-readable description of a non-success outcome.
func (o Outcome) Reason() string {
	switch o.Kind {
	case KindSuccess:
		return "ok"
	case KindHTTPError:
		if o.StatusCode == StatusTransportError {
			if o.Err != nil {
				return fmt.Sprintf("transport error: %v", o.Err)
			}
			return "transport error"
		}
		return fmt.Sprintf("http status %d", o.StatusCode)
	case KindUnsupportedContentType:
		return fmt.Sprintf("unsupported content type %q", o.ContentType)
	}
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return o.Kind.String()
}

// Package resolve turns stored media references into URLs a rendering surface
// can load.
//
// A reference may be an absolute or protocol-relative URL, a data URI, an
// ephemeral blob handle, or a path relative to the media server. Resolution
// never fails loudly: an empty result means "render a placeholder".
package resolve

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aweris/mediacache/internal/classify"
)

// logLimit bounds how much of a reference ends up in a log line.
const logLimit = 64

// Form names the shape a reference was recognised as.
type Form string

const (
	FormEmpty    Form = "empty"
	FormAbsolute Form = "absolute"
	FormData     Form = "data"
	FormHandle   Form = "handle"
	FormStale    Form = "stale"
	FormRelative Form = "relative"
)

// LiveChecker reports whether a handle is still registered in this process.
type LiveChecker interface {
	IsLiveHandle(ref string) bool
}

// Observer is notified of every resolution.
type Observer interface {
	ObserveResolve(form string)
}

type Resolver struct {
	Base     string
	Live     LiveChecker
	Log      logrus.FieldLogger
	Observer Observer
}

// New builds a resolver for base. A nil logger falls back to the standard logger.
func New(base string, live LiveChecker, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{
		Base: strings.TrimRight(base, "/"),
		Live: live,
		Log:  log.WithField("component", "resolver"),
	}
}

// Resolve returns a renderable URL for ref, or "" when nothing should be rendered.
func (r *Resolver) Resolve(ref string) string {
	url, form := r.Classify(ref)
	if r.Observer != nil {
		r.Observer.ObserveResolve(string(form))
	}

	switch form {
	case FormStale:
		r.Log.WithField("ref", Truncate(ref)).
			Warn("stale media reference: handle outlived its registry entry, re-upload required")
	case FormRelative:
		r.Log.WithFields(logrus.Fields{"ref": Truncate(ref), "url": Truncate(url)}).
			Debug("resolved relative media reference")
	}
	return url
}

// Classify resolves ref without side effects and reports which rule matched.
func (r *Resolver) Classify(ref string) (string, Form) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", FormEmpty
	case classify.IsAbsolute(ref):
		return ref, FormAbsolute
	case classify.IsDataURI(ref):
		return ref, FormData
	case classify.IsHandle(ref):
		if r.Live != nil && r.Live.IsLiveHandle(ref) {
			return ref, FormHandle
		}
		return "", FormStale
	}

	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return r.Base + ref, FormRelative
}

// Truncate shortens ref for logging.
func Truncate(ref string) string {
	runes := []rune(ref)
	if len(runes) <= logLimit {
		return ref
	}
	return string(runes[:logLimit]) + "..."
}

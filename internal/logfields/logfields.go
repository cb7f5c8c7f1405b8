package logfields

import "log/slog"

// Canonical log field names shared by scan, probe and API logging.
const (
	KeyScanID      = "scan_id"
	KeyScanStatus  = "scan_status"
	KeyDocumentID  = "document_id"
	KeyDocType     = "document_type"
	KeySourceURL   = "source_url"
	KeyURL         = "url"
	KeyLinkClass   = "link_class"
	KeyStatus      = "status_code"
	KeyPages       = "pages"
	KeyLinks       = "links"
	KeyBroken      = "broken"
	KeyDurationMS  = "duration_ms"
	KeySchedule    = "schedule"
	KeyPath        = "path"
	KeyMethod      = "method"
	KeyRemoteAddr  = "remote_addr"
	KeyComponent   = "component"
	KeyRequestID   = "request_id"
	KeyFingerprint = "fingerprint"
	KeyError       = "error"
)

func ScanID(id int64) slog.Attr       { return slog.Int64(KeyScanID, id) }
func ScanStatus(s string) slog.Attr   { return slog.String(KeyScanStatus, s) }
func DocumentID(id int64) slog.Attr   { return slog.Int64(KeyDocumentID, id) }
func DocType(t string) slog.Attr      { return slog.String(KeyDocType, t) }
func SourceURL(u string) slog.Attr    { return slog.String(KeySourceURL, u) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func LinkClass(c string) slog.Attr    { return slog.String(KeyLinkClass, c) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Pages(n int) slog.Attr           { return slog.Int(KeyPages, n) }
func Links(n int) slog.Attr           { return slog.Int(KeyLinks, n) }
func Broken(n int) slog.Attr          { return slog.Int(KeyBroken, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Schedule(expr string) slog.Attr  { return slog.String(KeySchedule, expr) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func Fingerprint(fp string) slog.Attr { return slog.String(KeyFingerprint, fp) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

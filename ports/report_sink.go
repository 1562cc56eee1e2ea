package ports

import "context"

// ReportSink stores generated reports and returns where they ended up
type ReportSink interface {
	Put(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

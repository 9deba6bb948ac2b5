package httpapi

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/provider"
	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
	"github.com/QWED-AI/qwed-verification/internal/sandbox"
)

// maxStatsUploadBytes bounds the multipart form the stats endpoint will
// buffer into memory while parsing the CSV attachment.
const maxStatsUploadBytes = 16 << 20

// uploadedFrame is the parsed CSV attachment stashed in the request
// context so the StatsAdapter's FrameSource — fixed once at construction
// time (see engine.NewStatsAdapter) — can resolve per-request data
// without the control plane's Request type needing a frame field of its
// own.
type uploadedFrame struct {
	data   sandbox.Frame
	schema provider.FrameSchema
}

type frameCtxKey struct{}

func withFrame(ctx context.Context, f uploadedFrame) context.Context {
	return context.WithValue(ctx, frameCtxKey{}, f)
}

func frameFromContext(ctx context.Context) (uploadedFrame, bool) {
	f, ok := ctx.Value(frameCtxKey{}).(uploadedFrame)
	return f, ok
}

// contextFrameSource implements engine.FrameSource by reading the frame a
// handler stashed into the request context before calling Pipeline.Run,
// the same context-propagation idiom logging.WithTraceID and
// tenant.WithContext use elsewhere in the gateway.
type contextFrameSource struct{}

func (contextFrameSource) Load(ctx context.Context, _ provider.FrameSchema) (sandbox.Frame, error) {
	f, ok := frameFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no frame attached to request context")
	}
	return f.data, nil
}

// NewFrameSource returns the engine.FrameSource the gateway's
// StatsAdapter is constructed with; every stats run reads back whatever
// the handling request attached via withFrame.
func NewFrameSource() contextFrameSource {
	return contextFrameSource{}
}

// parseCSVFrame reads a CSV attachment into a sandbox.Frame: the header
// row names the columns, every other row must parse as float64 in every
// column, and the inferred schema types every column "real".
func parseCSVFrame(file multipart.File) (sandbox.Frame, provider.FrameSchema, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, provider.FrameSchema{}, fmt.Errorf("csv file is empty")
		}
		return nil, provider.FrameSchema{}, fmt.Errorf("read csv header: %w", err)
	}

	frame := make(sandbox.Frame, len(header))
	schema := provider.FrameSchema{Columns: make(map[string]string, len(header))}
	for _, col := range header {
		frame[col] = []float64{}
		schema.Columns[col] = "real"
	}

	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, provider.FrameSchema{}, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}
		if len(record) != len(header) {
			return nil, provider.FrameSchema{}, fmt.Errorf("row %d has %d columns, header has %d", rowNum, len(record), len(header))
		}
		for i, raw := range record {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, provider.FrameSchema{}, fmt.Errorf("row %d column %q is not numeric: %w", rowNum, header[i], err)
			}
			col := header[i]
			frame[col] = append(frame[col], value)
		}
		rowNum++
	}

	return frame, schema, nil
}

func (s *Server) handleVerifyStats(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if err := r.ParseMultipartForm(maxStatsUploadBytes); err != nil {
		httputil.WriteServiceError(w, r, qerrors.InvalidInput("file", "request is not a valid multipart form"))
		return
	}

	query := r.FormValue("query")
	if query == "" {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("query"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.MissingParameter("file"))
		return
	}
	defer file.Close()

	frameData, schema, err := parseCSVFrame(file)
	if err != nil {
		httputil.WriteServiceError(w, r, qerrors.InvalidInput("file", err.Error()))
		return
	}

	req := s.baseRequest(r, "stats")
	req.Query = query
	req.Schema = schema
	req.PreferredProvider = r.FormValue("provider")

	ctx := withFrame(r.Context(), uploadedFrame{data: frameData, schema: schema})
	resp := s.Pipeline.Run(ctx, req)
	s.respondPipeline(w, r, resp, started, req.Tenant.Org.ID)
}

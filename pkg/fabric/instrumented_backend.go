// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fabric

import (
	"context"
	"time"

	"github.com/quarrydata/quarry/pkg/observability"
)

// InstrumentedBackend wraps an ExecutionBackend with spans and metrics for
// query execution and schema introspection.
type InstrumentedBackend struct {
	backend ExecutionBackend
	tracer  observability.Tracer
}

// NewInstrumentedBackend wraps backend. A nil tracer returns backend as is.
func NewInstrumentedBackend(backend ExecutionBackend, tracer observability.Tracer) ExecutionBackend {
	if tracer == nil {
		return backend
	}
	return &InstrumentedBackend{backend: backend, tracer: tracer}
}

// Unwrap returns the wrapped backend.
func (ib *InstrumentedBackend) Unwrap() ExecutionBackend {
	return ib.backend
}

func (ib *InstrumentedBackend) Name() string {
	return ib.backend.Name()
}

func (ib *InstrumentedBackend) ExecuteQuery(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	ctx, span := ib.tracer.StartSpan(ctx, observability.SpanBackendQuery,
		observability.WithSpanKind("backend"),
		observability.WithAttribute(observability.AttrBackendType, ib.backend.Name()),
	)
	defer ib.tracer.EndSpan(span)

	preview := query
	if len(preview) > 500 {
		preview = preview[:500] + "..."
	}
	span.SetAttribute("query.preview", preview)

	labels := map[string]string{observability.AttrBackendType: ib.backend.Name()}
	start := time.Now()
	result, err := ib.backend.ExecuteQuery(ctx, query, maxRows)
	ib.tracer.RecordMetric(observability.MetricBackendDuration, float64(time.Since(start).Milliseconds()), labels)
	if err != nil {
		span.RecordError(err)
		ib.tracer.RecordMetric(observability.MetricBackendErrors, 1, labels)
		return nil, err
	}

	span.SetStatus(observability.StatusOK, "")
	span.SetAttribute("result.row_count", result.RowCount)
	span.SetAttribute("result.total_rows", result.TotalRows)
	span.SetAttribute("result.truncated", result.Truncated)
	ib.tracer.RecordMetric(observability.MetricBackendQueries, 1, labels)
	ib.tracer.RecordMetric(observability.MetricBackendRows, float64(result.RowCount), labels)
	return result, nil
}

func (ib *InstrumentedBackend) GetSchema(ctx context.Context, table string) (*Schema, error) {
	ctx, span := ib.tracer.StartSpan(ctx, observability.SpanBackendSchema,
		observability.WithAttribute(observability.AttrBackendType, ib.backend.Name()),
		observability.WithAttribute("schema.table", table),
	)
	defer ib.tracer.EndSpan(span)

	schema, err := ib.backend.GetSchema(ctx, table)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("schema.field_count", len(schema.Fields))
	return schema, nil
}

func (ib *InstrumentedBackend) ListResources(ctx context.Context) ([]Resource, error) {
	ctx, span := ib.tracer.StartSpan(ctx, observability.SpanBackendList,
		observability.WithAttribute(observability.AttrBackendType, ib.backend.Name()),
	)
	defer ib.tracer.EndSpan(span)

	resources, err := ib.backend.ListResources(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("resource.count", len(resources))
	return resources, nil
}

func (ib *InstrumentedBackend) SampleRows(ctx context.Context, table string, n int) ([]map[string]interface{}, error) {
	return ib.backend.SampleRows(ctx, table, n)
}

func (ib *InstrumentedBackend) Ping(ctx context.Context) error {
	return ib.backend.Ping(ctx)
}

func (ib *InstrumentedBackend) Close() error {
	return ib.backend.Close()
}

var _ ExecutionBackend = (*InstrumentedBackend)(nil)

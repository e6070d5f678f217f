package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-rescue-dispatch/internal/config"
)

// keepGlobals restores the OTel globals when the test ends.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func tracingCfg(name string, ratio float64, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: ratio,
	}
}

func mustSetup(t *testing.T, ctx context.Context, cfg config.OTELConfig) ShutdownFunc {
	t.Helper()
	shutdown, err := SetupOTel(ctx, cfg, "v1.0.0")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		_ = shutdown(ctx)
	})
	return shutdown
}

// ---------- disabled ----------

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, "v0")
	if err != nil || shutdown == nil {
		t.Fatalf("disabled setup: shutdown=%v err=%v", shutdown != nil, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatal("disabled tracing must not replace the provider")
	}
}

// ---------- enabled ----------

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	cases := []struct {
		name     string
		insecure bool
		ctx      func() context.Context
	}{
		{"plaintext collector", true, context.Background},
		{"tls collector", false, context.Background},
		{"canceled ctx still builds (lazy dial)", true, func() context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keepGlobals(t)
			mustSetup(t, tc.ctx(), tracingCfg("rescue-dispatch", 1, tc.insecure))

			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("provider = %T", otel.GetTracerProvider())
			}

			ctx, span := otel.Tracer("cases").Start(context.Background(), "CaseService.Claim")
			defer span.End()
			carrier := propagation.MapCarrier{}
			otel.GetTextMapPropagator().Inject(ctx, carrier)
			if !strings.Contains(carrier.Get("traceparent"), span.SpanContext().TraceID().String()) {
				t.Fatalf("traceparent not propagated: %v", carrier)
			}
		})
	}
}

func TestSetupOTel_SampleRatio(t *testing.T) {
	for _, tc := range []struct {
		ratio   float64
		sampled bool
	}{{1, true}, {0, false}} {
		keepGlobals(t)
		mustSetup(t, context.Background(), tracingCfg("rescue-sampling", tc.ratio, true))

		_, span := otel.Tracer("cases").Start(context.Background(), "CaseService.Submit")
		got := span.SpanContext().IsSampled()
		span.End()
		if got != tc.sampled {
			t.Fatalf("ratio %v: sampled = %v; want %v", tc.ratio, got, tc.sampled)
		}
	}
}

func TestSetupOTel_ResourceGetsNameAndVersion(t *testing.T) {
	keepGlobals(t)
	orig := newServiceResourceFn
	t.Cleanup(func() { newServiceResourceFn = orig })

	var gotName, gotVersion string
	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		gotName, gotVersion = serviceName, version
		return orig(ctx, serviceName, version)
	}

	mustSetup(t, context.Background(), tracingCfg("rescue-api", 1, true))
	if gotName != "rescue-api" || gotVersion != "v1.0.0" {
		t.Fatalf("resource built with %q %q", gotName, gotVersion)
	}

	res, err := orig(context.Background(), "rescue-api", "v1.0.0")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if !strings.Contains(res.String(), "service.namespace="+ServiceNamespace) {
		t.Fatalf("namespace missing from %s", res.String())
	}
}

func TestClientOptionsAndLimits(t *testing.T) {
	if n := len(clientOptions(tracingCfg("svc", 1, false))); n != 3 {
		t.Fatalf("client options = %d", n)
	}
	if got := spanLimits().AttributeValueLengthLimit; got != 512 {
		t.Fatalf("attribute length limit = %d", got)
	}
}

// ---------- failures ----------

func TestSetupOTel_FailuresKeepGlobals(t *testing.T) {
	cases := []struct {
		name  string
		patch func() (restore func())
	}{
		{"exporter", func() func() {
			orig := newOTLPExporterFn
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("boom-exporter")
			}
			return func() { newOTLPExporterFn = orig }
		}},
		{"resource", func() func() {
			orig := newServiceResourceFn
			newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
			return func() { newServiceResourceFn = orig }
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keepGlobals(t)
			t.Cleanup(tc.patch())
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			if _, err := SetupOTel(context.Background(), tracingCfg("svc", 1, true), "v0"); err == nil || !strings.Contains(err.Error(), "boom-"+tc.name) {
				t.Fatalf("err = %v", err)
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatal("globals changed on failure")
			}
		})
	}
}

// ---------- ShutdownAll ----------

func TestShutdownAll_ReverseOrderJoinsErrors(t *testing.T) {
	var order []string
	mk := func(name string, err error) ShutdownFunc {
		return func(context.Context) error {
			order = append(order, name)
			return err
		}
	}
	errHub := errors.New("hub")
	errTP := errors.New("tracer")

	err := ShutdownAll(context.Background(), mk("tracer", errTP), nil, mk("db", nil), mk("hub", errHub))
	if got := strings.Join(order, ","); got != "hub,db,tracer" {
		t.Fatalf("order = %s; want hub,db,tracer", got)
	}
	if !errors.Is(err, errHub) || !errors.Is(err, errTP) {
		t.Fatalf("expected joined errors, got %v", err)
	}

	if err := ShutdownAll(context.Background()); err != nil {
		t.Fatalf("empty ShutdownAll returned %v", err)
	}
}

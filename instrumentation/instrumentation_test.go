package instrumentation

import (
	"context"
	"fmt"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "default config",
			config: Config{
				Enabled: false,
			},
			wantErr: false,
		},
		{
			name: "with service name and version",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "empty service name gets default",
			config: Config{
				Enabled:        true,
				ServiceName:    "",
				ServiceVersion: "",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if inst == nil {
				t.Fatal("New() returned nil instrumentation")
			}

			// Meters and tracers can be created for different scopes.
			if inst.Meter("auth") == nil {
				t.Error("Meter('auth') returned nil")
			}
			if inst.Meter("token") == nil {
				t.Error("Meter('token') returned nil")
			}
			if inst.Tracer("auth") == nil {
				t.Error("Tracer('auth') returned nil")
			}

			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.MeterProvider() == nil {
				t.Error("MeterProvider() returned nil")
			}
			if inst.TracerProvider() == nil {
				t.Error("TracerProvider() returned nil")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := inst.Shutdown(ctx); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
			// Shutdown is idempotent.
			if err := inst.Shutdown(ctx); err != nil {
				t.Errorf("Second Shutdown() error = %v", err)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	if inst.config.ServiceName != "voice-account-auth" {
		t.Errorf("Default ServiceName = %q, want %q", inst.config.ServiceName, "voice-account-auth")
	}
	if inst.config.ServiceVersion != "unknown" {
		t.Errorf("Default ServiceVersion = %q, want %q", inst.config.ServiceVersion, "unknown")
	}
	if inst.Resource() == nil {
		t.Error("Resource() returned nil")
	}
}

func TestInstrumentation_NoOpProviders(t *testing.T) {
	inst, err := New(Config{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	// Recording against the no-op providers must not panic or error.
	inst.Metrics().RecordLoginAttempt(ctx, "success")
	inst.Metrics().RecordSecurityEvent(ctx, "login_failure", "medium")
	inst.Metrics().TokensIssued.Add(ctx, 1)

	_, span := inst.Tracer("auth").Start(ctx, "test-span")
	span.End()
}

func TestInstrumentation_DisabledIgnoresProviders(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	if err := inst.SetMeterProvider(provider); err != nil {
		t.Fatalf("SetMeterProvider() error = %v", err)
	}
	if inst.MeterProvider() == provider {
		t.Error("disabled instrumentation accepted a real meter provider")
	}
}

func TestInstrumentation_SetMeterProvider(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	before := inst.Metrics()
	if err := inst.SetMeterProvider(provider); err != nil {
		t.Fatalf("SetMeterProvider() error = %v", err)
	}
	if inst.MeterProvider() != provider {
		t.Error("SetMeterProvider() did not install the provider")
	}
	if inst.Metrics() == before {
		t.Error("SetMeterProvider() did not recreate the metric instruments")
	}
}

func TestInstrumentation_ConcurrentAccess(t *testing.T) {
	inst, err := New(Config{
		Enabled:        true,
		ServiceName:    "concurrent-test",
		ServiceVersion: "1.0.0",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	done := make(chan bool)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				inst.Metrics().RecordLoginAttempt(ctx, fmt.Sprintf("outcome-%d", id))
				inst.Metrics().RecordSecurityEvent(ctx, "login_failure", "medium")

				_, span := inst.Tracer("auth").Start(ctx, "concurrent-span")
				span.End()
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

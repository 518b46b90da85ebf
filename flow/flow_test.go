package flow_test

import (
	"testing"

	"github.com/dialogkit/convmem/core"
	"github.com/dialogkit/convmem/flow"
)

func turnsWithIntents(intents ...string) []core.ConversationTurn {
	turns := make([]core.ConversationTurn, len(intents))
	for i, intent := range intents {
		turns[i] = core.ConversationTurn{Intent: intent}
	}
	return turns
}

func TestDetect_CatalogPatterns(t *testing.T) {
	tests := []struct {
		name    string
		intents []string
		want    string
	}{
		{"greeting then price", []string{"saludo", "consulta_precio"}, flow.PriceInquiry},
		{"repeated price", []string{"consulta_precio", "consulta_precio"}, flow.PriceInquiry},
		{"warranty claim", []string{"consulta_garantia", "reclamo"}, flow.WarrantyClaim},
		{"service after price", []string{"consulta_precio", "solicitud_servicio"}, flow.ServiceRequest},
		{"service confirmed", []string{"solicitud_servicio", "confirmacion"}, flow.ServiceRequest},
		{"price then schedule", []string{"consulta_precio", "consulta_horario"}, flow.TimingConsultation},
		{"pattern inside longer history", []string{"saludo", "consulta_precio", "consulta_precio", "confirmacion"}, flow.PriceInquiry},
		{"no pattern", []string{"saludo", "despedida"}, flow.General},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flow.Detect(turnsWithIntents(tt.intents...)); got != tt.want {
				t.Errorf("Detect(%v) = %q, want %q", tt.intents, got, tt.want)
			}
		})
	}
}

func TestDetect_EmptyHistory(t *testing.T) {
	if got := flow.Detect(nil); got != flow.General {
		t.Errorf("Detect(nil) = %q, want %q", got, flow.General)
	}
}

func TestDetect_OnlyRecentWindowCounts(t *testing.T) {
	// The matching pair sits outside the 4-turn window and must be invisible.
	intents := []string{"consulta_garantia", "reclamo", "saludo", "despedida", "despedida", "despedida"}
	if got := flow.Detect(turnsWithIntents(intents...)); got != flow.General {
		t.Errorf("Detect() = %q, want %q (old turns must not match)", got, flow.General)
	}
}

func TestDetect_MultiDeviceHeuristic(t *testing.T) {
	turns := []core.ConversationTurn{
		{Intent: "saludo", Extracted: core.Extracted{Device: "iphone 12"}},
		{Intent: "despedida", Extracted: core.Extracted{Device: "samsung a52"}},
	}
	if got := flow.Detect(turns); got != flow.MultiDeviceFamily {
		t.Errorf("Detect() = %q, want %q", got, flow.MultiDeviceFamily)
	}
}

func TestDetect_MultiBrandTextHeuristic(t *testing.T) {
	turns := []core.ConversationTurn{
		{Intent: "saludo", UserText: "traigo un iphone y un xiaomi de mi familia"},
	}
	if got := flow.Detect(turns); got != flow.MultiDeviceFamily {
		t.Errorf("Detect() = %q, want %q", got, flow.MultiDeviceFamily)
	}
}

func TestDetect_TimingHeuristic(t *testing.T) {
	turns := []core.ConversationTurn{
		{Intent: "otro", UserText: "cuanto cuesta y en cuanto tiempo queda listo"},
	}
	if got := flow.Detect(turns); got != flow.TimingConsultation {
		t.Errorf("Detect() = %q, want %q", got, flow.TimingConsultation)
	}
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscan-intake/pkg"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantType   pkg.ActionType
		wantField  pkg.Field
		wantValue  *string
		wantPhoto  int
		wantSpeech string
		wantDone   bool
	}{
		{
			name:       "plain object",
			output:     `{"speech":"Hi Alice! Which doctor?","action_type":null,"field":null,"value":null,"photo_index":null,"is_complete":false}`,
			wantType:   pkg.ActionNone,
			wantSpeech: "Hi Alice! Which doctor?",
		},
		{
			name:       "fenced with json tag",
			output:     "```json\n{\"speech\":\"Noted.\",\"action_type\":\"fill_field\",\"field\":\"pain_level\",\"value\":\"Mild\",\"photo_index\":null,\"is_complete\":false}\n```",
			wantType:   pkg.ActionFillField,
			wantField:  pkg.FieldPainLevel,
			wantValue:  strPtr("Mild"),
			wantSpeech: "Noted.",
		},
		{
			name:       "fenced without tag",
			output:     "```\n{\"speech\":\"Front photo please.\",\"action_type\":\"request_photo\",\"photo_index\":1}\n```",
			wantType:   pkg.ActionRequestPhoto,
			wantPhoto:  1,
			wantSpeech: "Front photo please.",
		},
		{
			name:       "object embedded in prose",
			output:     `Sure! Here you go: {"speech":"Thanks {really}","action_type":"submit","is_complete":true} hope that helps`,
			wantType:   pkg.ActionSubmit,
			wantSpeech: "Thanks {really}",
			wantDone:   true,
		},
		{
			name:       "missing speech gets clarification",
			output:     `{"action_type":null}`,
			wantType:   pkg.ActionNone,
			wantSpeech: ClarifySpeech,
		},
		{
			name:       "numeric value rendered as text",
			output:     `{"speech":"Dr. Smith it is.","action_type":"fill_field","field":"doctor_id","value":1}`,
			wantType:   pkg.ActionFillField,
			wantField:  pkg.FieldDoctorID,
			wantValue:  strPtr("1"),
			wantSpeech: "Dr. Smith it is.",
		},
		{
			name:       "fill_field without field is downgraded",
			output:     `{"speech":"Okay.","action_type":"fill_field","field":null,"value":"Yes"}`,
			wantType:   pkg.ActionNone,
			wantValue:  strPtr("Yes"),
			wantSpeech: "Okay.",
		},
		{
			name:       "fill_field with unknown field is downgraded",
			output:     `{"speech":"Okay.","action_type":"fill_field","field":"blood_type","value":"O"}`,
			wantType:   pkg.ActionNone,
			wantValue:  strPtr("O"),
			wantSpeech: "Okay.",
		},
		{
			name:       "request_photo without index is downgraded",
			output:     `{"speech":"A photo please.","action_type":"request_photo","photo_index":null}`,
			wantType:   pkg.ActionNone,
			wantSpeech: "A photo please.",
		},
		{
			name:       "request_photo out of range is downgraded",
			output:     `{"speech":"A photo please.","action_type":"request_photo","photo_index":4}`,
			wantType:   pkg.ActionNone,
			wantSpeech: "A photo please.",
		},
		{
			name:       "photo index as string",
			output:     `{"speech":"Left side now.","action_type":"request_photo","photo_index":"2","is_complete":"false"}`,
			wantType:   pkg.ActionRequestPhoto,
			wantPhoto:  2,
			wantSpeech: "Left side now.",
		},
		{
			name:       "unknown action type",
			output:     `{"speech":"Hmm.","action_type":"dance"}`,
			wantType:   pkg.ActionNone,
			wantSpeech: "Hmm.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAction(tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.ActionType)
			assert.Equal(t, tt.wantField, got.Field)
			assert.Equal(t, tt.wantValue, got.Value)
			assert.Equal(t, tt.wantPhoto, got.PhotoIndex)
			assert.Equal(t, tt.wantSpeech, got.Speech)
			assert.Equal(t, tt.wantDone, got.IsComplete)
		})
	}
}

func TestDecodeActionMalformed(t *testing.T) {
	for _, output := range []string{
		"",
		"I am not JSON at all",
		`{"speech": "unterminated`,
		"[1,2,3]",
		"null",
	} {
		_, err := DecodeAction(output)
		assert.ErrorIs(t, err, ErrMalformed, "output %q", output)
	}
}

func TestFirstObjectIgnoresBracesInStrings(t *testing.T) {
	got, ok := firstObject(`noise {"a":"}{","b":{"c":1}} tail {"d":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}{","b":{"c":1}}`, got)
}

func TestKindForModel(t *testing.T) {
	for model, want := range map[string]ProviderKind{
		"gemini-2.0-flash-lite":   KindGemini,
		"gpt-4o-mini":             KindOpenAI,
		"o3-mini":                 KindOpenAI,
		"claude-3-5-haiku-latest": KindAnthropic,
	} {
		got, ok := KindForModel(model)
		assert.True(t, ok, model)
		assert.Equal(t, want, got, model)
	}
	_, ok := KindForModel("llama-3")
	assert.False(t, ok)
}

func TestKeyConfigured(t *testing.T) {
	assert.False(t, KeyConfigured(""))
	assert.False(t, KeyConfigured("   "))
	assert.False(t, KeyConfigured("your_gemini_api_key_here"))
	assert.True(t, KeyConfigured("AIza-real-key"))
}

func strPtr(s string) *string { return &s }

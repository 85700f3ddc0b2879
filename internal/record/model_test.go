package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerRefDecodesEveryShape(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantID    string
		wantOwner bool
	}{
		{"bare string", `{"id":"pet-1","name":"Rex","propietario":"owner-1"}`, "owner-1", false},
		{"nested object", `{"id":"pet-1","name":"Rex","propietario":{"id":"owner-2","name":"Ana"}}`, "owner-2", true},
		{"legacy id field", `{"id":"pet-1","name":"Rex","propietario":{"_id":"owner-3"}}`, "owner-3", true},
		{"numeric id", `{"id":"pet-1","name":"Rex","propietario":42}`, "42", false},
		{"null owner", `{"id":"pet-1","name":"Rex","propietario":null}`, "", false},
		{"absent owner", `{"id":"pet-1","name":"Rex"}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Pet
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &p))
			assert.Equal(t, tt.wantID, p.Owner.ID())
			_, nested := p.Owner.Record()
			assert.Equal(t, tt.wantOwner, nested)
		})
	}
}

func TestOwnerRefRejectsGarbage(t *testing.T) {
	var p Pet
	err := json.Unmarshal([]byte(`{"id":"pet-1","propietario":[1,2]}`), &p)
	assert.Error(t, err)
}

func TestOwnerRefKeepsShapeOnEncode(t *testing.T) {
	bare, err := json.Marshal(Pet{ID: "pet-1", Owner: OwnerID("owner-1")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"pet-1","name":"","propietario":"owner-1"}`, string(bare))

	nested, err := json.Marshal(Pet{ID: "pet-1", Owner: OwnerRecord(Owner{ID: "owner-2", Name: "Ana"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"pet-1","name":"","propietario":{"id":"owner-2","name":"Ana"}}`, string(nested))

	empty, err := json.Marshal(Pet{ID: "pet-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"pet-1","name":"","propietario":null}`, string(empty))
}

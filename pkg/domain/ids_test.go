package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "armora/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseArmoryID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseArmoryID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseArmoryID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseArmoryID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ArmoryID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	armoryID := ArmoryID(uuid.New())
	officerID := OfficerID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ ArmoryID = officerID   // compile error
	// var _ OfficerID = armoryID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(armoryID), uuid.UUID(officerID))
}

// TestParseID_SecurityInvariants validates trust boundary parsing rules:
// IDs arrive from URL segments and token claims and must reject attack
// vectors at entry.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE armories;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDistributionID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical
// parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errArmory := ParseArmoryID(validUUID)
		_, errDistribution := ParseDistributionID(validUUID)
		_, errOfficer := ParseOfficerID(validUUID)
		_, errUser := ParseUserID(validUUID)

		require.NoError(t, errArmory)
		require.NoError(t, errDistribution)
		require.NoError(t, errOfficer)
		require.NoError(t, errUser)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errArmory := ParseArmoryID(input)
			_, errDistribution := ParseDistributionID(input)
			_, errOfficer := ParseOfficerID(input)
			_, errUser := ParseUserID(input)

			require.Error(t, errArmory)
			require.Error(t, errDistribution)
			require.Error(t, errOfficer)
			require.Error(t, errUser)
		})
	}
}

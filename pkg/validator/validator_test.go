package validator_test

import (
	"testing"

	"github.com/marcodd23/go-pool-core/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolSettings struct {
	PoolClass string `validate:"required,oneof=queue pinned"`
	PoolSize  int    `validate:"gte=1"`
}

// TestValidateStructCollectsFailures verifies that every failing tag is
// reported with its field path.
func TestValidateStructCollectsFailures(t *testing.T) {
	valErrors := validator.NewValidator().ValidateStruct(poolSettings{PoolClass: "bogus", PoolSize: 0})
	require.Len(t, valErrors, 2)
	assert.Equal(t, "poolSettings.PoolClass", valErrors[0].FailedField)
	assert.Equal(t, "oneof", valErrors[0].Tag)
	assert.Equal(t, "poolSettings.PoolSize", valErrors[1].FailedField)
}

// TestValidationErrorMessageCarriesDetails verifies the error string exposes
// the failed fields instead of an empty object.
func TestValidationErrorMessageCarriesDetails(t *testing.T) {
	valErrors := validator.NewValidator().ValidateStruct(poolSettings{PoolClass: "queue", PoolSize: -1})
	require.Len(t, valErrors, 1)

	err := validator.NewValidationError(valErrors)
	assert.Contains(t, err.Error(), "PoolSize")
	assert.Contains(t, err.Error(), "gte")
}

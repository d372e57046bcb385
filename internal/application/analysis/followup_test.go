package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
	aimocks "github.com/samtaplin/llmneldacoding/internal/domain/ai/mocks"
	"github.com/samtaplin/llmneldacoding/internal/domain/nelda"
	"github.com/samtaplin/llmneldacoding/internal/infra/ai/prompt"
)

func TestFollowUp_ScopesSchemaAndResult(t *testing.T) {
	prompts, err := prompt.Default()
	require.NoError(t, err)
	client := aimocks.NewMockClient(t)

	missing := []string{"NELDA12", "NELDA40"}
	client.On("GenerateStructured", mock.Anything, mock.MatchedBy(func(req ai.StructuredRequest) bool {
		return assert.ObjectsAreEqual(missing, req.Schema.Properties) &&
			assert.ObjectsAreEqual(nelda.ValueStrings(), req.Schema.Enum)
	})).Return(map[string]string{"NELDA12": "No", "NELDA1": "Yes"}, nil).Once()

	f := &FollowUp{Client: client, Prompts: prompts}
	rec, err := f.Request(context.Background(), testRequest, "analysis text", missing)
	require.NoError(t, err)
	assert.Equal(t, nelda.Record{"NELDA12": nelda.No}, rec)
}

func TestFollowUp_NothingMissingMakesNoCall(t *testing.T) {
	client := aimocks.NewMockClient(t)
	f := &FollowUp{Client: client}

	rec, err := f.Request(context.Background(), testRequest, "analysis text", nil)
	require.NoError(t, err)
	assert.Empty(t, rec)
}

func TestFollowUp_PropagatesClientError(t *testing.T) {
	prompts, err := prompt.Default()
	require.NoError(t, err)
	client := aimocks.NewMockClient(t)
	client.On("GenerateStructured", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	f := &FollowUp{Client: client, Prompts: prompts}
	_, err = f.Request(context.Background(), testRequest, "analysis text", []string{"NELDA1"})
	assert.Error(t, err)
}

package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mooring-labs/searchlink/internal/index"
	"github.com/mooring-labs/searchlink/internal/reconcile/mocks"
)

func marshalEnvelope(t *testing.T, envelope Envelope) []byte {
	t.Helper()
	payload, err := json.Marshal(envelope)
	require.NoError(t, err)
	return payload
}

func validatorAccepting(ctrl *gomock.Controller, tokens ...string) *mocks.MocktokenValidator {
	validator := mocks.NewMocktokenValidator(ctrl)
	for _, token := range tokens {
		validator.EXPECT().
			ValidateToken(gomock.Any(), token).
			Return(jwt.MapClaims{"sub": "admin-surface"}, nil)
	}
	return validator
}

func TestProcessPayloadCreatesMissingConnection(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	gomock.InOrder(
		connections.EXPECT().ListConnections(gomock.Any()).Return(nil, nil),
		connections.EXPECT().
			CreateConnection(gomock.Any(), index.Connection{ID: "conn-1", Name: "GitHub search"}, "tk-1").
			Return(nil).
			Times(1),
		connections.EXPECT().
			RegisterSchema(gomock.Any(), "conn-1", gomock.Any()).
			Return(nil).
			Times(1),
	)

	reconciler := NewReconciler(connections, validatorAccepting(ctrl, "token-a"),
		WithConnectionName("GitHub search"))

	results, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications:    []Signal{{ResourceID: "conn-1", DesiredState: StateEnabled, Ticket: "tk-1"}},
		ValidationTokens: []string{"token-a"},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conn-1", results[0].ResourceID)
	assert.Equal(t, ResultCreated, results[0].Result)
	assert.NoError(t, results[0].Err)
}

func TestProcessPayloadExistingConnectionIsNoop(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No CreateConnection or RegisterSchema expectations: any such call
	// fails the test.
	connections := mocks.NewMockconnectionService(ctrl)
	connections.EXPECT().
		ListConnections(gomock.Any()).
		Return([]index.Connection{{ID: "conn-1", Name: "GitHub search", State: "ready"}}, nil)

	reconciler := NewReconciler(connections, validatorAccepting(ctrl, "token-a"))

	results, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications:    []Signal{{ResourceID: "conn-1", DesiredState: StateEnabled, Ticket: "tk-1"}},
		ValidationTokens: []string{"token-a"},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultAlreadyExists, results[0].Result)
	assert.NoError(t, results[0].Err)
}

func TestProcessPayloadInvalidTokenMakesNoRemoteCalls(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	validator := mocks.NewMocktokenValidator(ctrl)
	validator.EXPECT().
		ValidateToken(gomock.Any(), "bad-token").
		Return(nil, errors.New("token has invalid audience"))

	reconciler := NewReconciler(connections, validator)

	results, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications:    []Signal{{ResourceID: "conn-1", DesiredState: StateEnabled}},
		ValidationTokens: []string{"bad-token"},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignalDiscarded)
	assert.Nil(t, results)
}

func TestProcessPayloadEveryTokenMustValidate(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	validator := mocks.NewMocktokenValidator(ctrl)
	gomock.InOrder(
		validator.EXPECT().
			ValidateToken(gomock.Any(), "good-token").
			Return(jwt.MapClaims{"sub": "admin-surface"}, nil),
		validator.EXPECT().
			ValidateToken(gomock.Any(), "forged-token").
			Return(nil, errors.New("signature invalid")),
	)

	reconciler := NewReconciler(connections, validator)

	_, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications:    []Signal{{ResourceID: "conn-1", DesiredState: StateEnabled}},
		ValidationTokens: []string{"good-token", "forged-token"},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignalDiscarded)
}

func TestProcessPayloadMalformedBodyDiscarded(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Neither the validator nor the index service may be touched.
	reconciler := NewReconciler(mocks.NewMockconnectionService(ctrl), mocks.NewMocktokenValidator(ctrl))

	results, err := reconciler.ProcessPayload(context.Background(), []byte(`{"notifications": 12}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignalDiscarded)
	assert.Nil(t, results)
}

func TestProcessPayloadDisabledDeletesConnection(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	gomock.InOrder(
		connections.EXPECT().
			ListConnections(gomock.Any()).
			Return([]index.Connection{{ID: "conn-1"}, {ID: "conn-2"}}, nil),
		connections.EXPECT().
			DeleteConnection(gomock.Any(), "conn-2").
			Return(nil).
			Times(1),
	)

	reconciler := NewReconciler(connections, validatorAccepting(ctrl, "token-a"))

	results, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications:    []Signal{{ResourceID: "conn-2", DesiredState: StateDisabled}},
		ValidationTokens: []string{"token-a"},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultDeleted, results[0].Result)
}

func TestProcessPayloadDisabledAbsentIsNoop(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	connections.EXPECT().ListConnections(gomock.Any()).Return(nil, nil)

	reconciler := NewReconciler(connections, validatorAccepting(ctrl, "token-a"))

	results, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications:    []Signal{{ResourceID: "conn-9", DesiredState: StateDisabled}},
		ValidationTokens: []string{"token-a"},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultAlreadyAbsent, results[0].Result)
}

func TestProcessPayloadFansOutIndependentSignals(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	// Each signal reconciles against its own fresh listing.
	connections.EXPECT().
		ListConnections(gomock.Any()).
		Return([]index.Connection{{ID: "conn-old"}}, nil).
		Times(2)
	connections.EXPECT().
		CreateConnection(gomock.Any(), gomock.Any(), "tk-new").
		Return(nil)
	connections.EXPECT().
		RegisterSchema(gomock.Any(), "conn-new", gomock.Any()).
		Return(nil)
	connections.EXPECT().
		DeleteConnection(gomock.Any(), "conn-old").
		Return(nil)

	reconciler := NewReconciler(connections, validatorAccepting(ctrl, "token-a"))

	results, err := reconciler.ProcessPayload(context.Background(), marshalEnvelope(t, Envelope{
		Notifications: []Signal{
			{ResourceID: "conn-new", DesiredState: StateEnabled, Ticket: "tk-new"},
			{ResourceID: "conn-old", DesiredState: StateDisabled},
		},
		ValidationTokens: []string{"token-a"},
	}))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ResultCreated, results[0].Result)
	assert.Equal(t, ResultDeleted, results[1].Result)
}

func TestReconcileListFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	connections.EXPECT().
		ListConnections(gomock.Any()).
		Return(nil, errors.New("index unreachable"))

	reconciler := NewReconciler(connections, mocks.NewMocktokenValidator(ctrl))

	_, err := reconciler.Reconcile(context.Background(), Signal{ResourceID: "conn-1", DesiredState: StateEnabled})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list connections")
}

func TestReconcileCreateFailureSkipsSchema(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	gomock.InOrder(
		connections.EXPECT().ListConnections(gomock.Any()).Return(nil, nil),
		connections.EXPECT().
			CreateConnection(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("quota exceeded")),
	)

	reconciler := NewReconciler(connections, mocks.NewMocktokenValidator(ctrl))

	result, err := reconciler.Reconcile(context.Background(), Signal{ResourceID: "conn-1", DesiredState: StateEnabled})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create connection")
	assert.Empty(t, result)
}

func TestReconcileSchemaRegistrationFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	connections := mocks.NewMockconnectionService(ctrl)
	gomock.InOrder(
		connections.EXPECT().ListConnections(gomock.Any()).Return(nil, nil),
		connections.EXPECT().CreateConnection(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		connections.EXPECT().
			RegisterSchema(gomock.Any(), "conn-1", gomock.Any()).
			Return(&index.OperationError{Code: "SchemaValidation", Message: "bad property"}),
	)

	reconciler := NewReconciler(connections, mocks.NewMocktokenValidator(ctrl))

	_, err := reconciler.Reconcile(context.Background(), Signal{ResourceID: "conn-1", DesiredState: StateEnabled})
	require.Error(t, err)

	var opErr *index.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "SchemaValidation", opErr.Code)
}

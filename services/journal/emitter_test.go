package journal

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakevault/native/staking"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestEmitterJournalsLedgerEvents(t *testing.T) {
	store := openTestStore(t)
	emitter := NewEmitter(store, nil)
	var saved []Entry
	emitter.OnSave(func(e Entry) { saved = append(saved, e) })

	account := [20]byte{7}
	emitter.Emit(staking.LedgerEvent{
		Account:   account,
		Kind:      staking.OpDeposit,
		Amount:    big.NewInt(500),
		Timestamp: 42,
		Sequence:  1,
	})
	emitter.Emit(staking.LedgerEvent{
		Account:    account,
		Kind:       staking.OpCredentialMinted,
		Credential: 3,
		Timestamp:  42,
		Sequence:   1,
	})
	emitter.Emit(bareEvent{})

	require.Len(t, saved, 2)
	page, err := store.List(context.Background(), Query{Kinds: []string{string(staking.OpCredentialMinted)}})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, uint64(3), page.Items[0].Credential)
	require.Equal(t, staking.EventTypeCredentialMinted, page.Items[0].Type)
	require.Equal(t, saved[0].Account, page.Items[0].Account)
}

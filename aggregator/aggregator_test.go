package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/wire"
)

type voter struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

func genVoters(t *testing.T, n int) (*committee.Committee, []voter) {
	t.Helper()
	authorities := make([]committee.Authority, n)
	voters := make([]voter, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		authorities[i] = committee.Authority{PublicKey: pub, Address: "x"}
		voters[i] = voter{priv: priv, pub: pub}
	}
	return committee.New(authorities), voters
}

func TestVoteAggregatorFormsQCAtQuorum(t *testing.T) {
	c, voters := genVoters(t, 4) // quorum = 3
	agg := NewVoteAggregator(c)
	hash := crypto.HashBytes([]byte("block"))

	var qc *wire.QC
	for i := 0; i < 3; i++ {
		v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: voters[i].pub}
		v.Signature = crypto.Sign(voters[i].priv, v.Digest())
		got, err := agg.Add(v, voters[0].pub, voters[1].pub)
		require.NoError(t, err)
		if i < 2 {
			require.Nil(t, got)
		} else {
			qc = got
		}
	}
	require.NotNil(t, qc)
	require.Equal(t, uint64(1), qc.Round)
	require.Len(t, qc.Signatures, 3)
}

func TestVoteAggregatorQCVerifies(t *testing.T) {
	c, voters := genVoters(t, 4) // quorum = 3
	agg := NewVoteAggregator(c)
	hash := crypto.HashBytes([]byte("block"))

	var qc *wire.QC
	for i := 0; i < 3; i++ {
		v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: voters[i].pub}
		v.Signature = crypto.Sign(voters[i].priv, v.Digest())
		got, err := agg.Add(v, voters[0].pub, voters[1].pub)
		require.NoError(t, err)
		if got != nil {
			qc = got
		}
	}
	require.NotNil(t, qc)

	resolve := c.ByHex
	require.NoError(t, qc.Verify(c.QuorumThreshold(), resolve),
		"a QC built from genuinely signed votes must verify against the same committee")
}

func TestVoteAggregatorRejectsDuplicateAuthor(t *testing.T) {
	c, voters := genVoters(t, 4)
	agg := NewVoteAggregator(c)
	hash := crypto.HashBytes([]byte("block"))

	v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: voters[0].pub}
	v.Signature = crypto.Sign(voters[0].priv, v.Digest())
	_, err := agg.Add(v, voters[0].pub, voters[1].pub)
	require.NoError(t, err)

	_, err = agg.Add(v, voters[0].pub, voters[1].pub)
	require.Error(t, err)
}

func TestVoteAggregatorRejectsUnknownAuthority(t *testing.T) {
	c, voters := genVoters(t, 4)
	agg := NewVoteAggregator(c)
	_, outsider, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	hash := crypto.HashBytes([]byte("block"))
	v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: outsider}
	_, err = agg.Add(v, voters[0].pub, voters[1].pub)
	require.Error(t, err)
}

func TestVoteAggregatorIdempotentAfterQuorum(t *testing.T) {
	c, voters := genVoters(t, 4)
	agg := NewVoteAggregator(c)
	hash := crypto.HashBytes([]byte("block"))

	for i := 0; i < 3; i++ {
		v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: voters[i].pub}
		v.Signature = crypto.Sign(voters[i].priv, v.Digest())
		_, err := agg.Add(v, voters[0].pub, voters[1].pub)
		require.NoError(t, err)
	}

	v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: voters[3].pub}
	v.Signature = crypto.Sign(voters[3].priv, v.Digest())
	qc, err := agg.Add(v, voters[0].pub, voters[1].pub)
	require.NoError(t, err)
	require.Nil(t, qc, "a QC for this round was already returned once")
}

func TestTimeoutAggregatorFormsTCAtQuorum(t *testing.T) {
	c, voters := genVoters(t, 4)
	agg := NewTimeoutAggregator(c)

	var tc *wire.TC
	for i := 0; i < 3; i++ {
		to := wire.Timeout{HighQC: wire.GenesisQC(), Round: 5, Voter: voters[i].pub}
		to.Signature = crypto.Sign(voters[i].priv, to.Digest())
		got, err := agg.Add(to)
		require.NoError(t, err)
		if i < 2 {
			require.Nil(t, got)
		} else {
			tc = got
		}
	}
	require.NotNil(t, tc)
	require.Equal(t, uint64(5), tc.Round)
	require.Len(t, tc.Signatures, 3)
}

func TestAggregatorCleanupDropsOldRounds(t *testing.T) {
	c, voters := genVoters(t, 4)
	agg := NewVoteAggregator(c)
	hash := crypto.HashBytes([]byte("block"))
	v := wire.Vote{Hash: hash, Round: 1, View: 1, Height: 1, Author: voters[0].pub}
	v.Signature = crypto.Sign(voters[0].priv, v.Digest())
	_, err := agg.Add(v, voters[0].pub, voters[1].pub)
	require.NoError(t, err)

	agg.Cleanup(2)
	require.Len(t, agg.rounds, 0)
}

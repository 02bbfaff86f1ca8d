package wire

import "errors"

var (
	// ErrQCNoQuorum is returned when a QC's signature set does not clear the
	// committee's quorum threshold.
	ErrQCNoQuorum = errors.New("wire: QC does not carry a quorum of signatures")
	// ErrQCUnknownAuthority is returned when a QC signature claims an
	// authority not present in the committee.
	ErrQCUnknownAuthority = errors.New("wire: QC signature from unknown authority")
	// ErrQCInvalidSignature is returned when a QC signature fails to verify
	// against the voted-for tuple.
	ErrQCInvalidSignature = errors.New("wire: QC contains an invalid signature")
)

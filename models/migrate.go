package models

// All lists every table the service owns, in migration order.
func All() []interface{} {
	return []interface{}{
		&EscrowEvent{},
		&RankShare{},
		&Registration{},
		&Claim{},
		&LedgerNotification{},
		&CustodyBalance{},
		&CustodyTransfer{},
		&CustodyDeposit{},
		&CommitmentArtifact{},
	}
}

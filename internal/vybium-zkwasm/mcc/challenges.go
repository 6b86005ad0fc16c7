package mcc

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
)

const transcriptLabel = "vybium-zkwasm/mcc-challenges"

// DeriveChallenges squeezes (γ, α) from the commitments to the execution
// advice and to the scanned memory cells
func DeriveChallenges(execution, scan core.Digest) (gamma, alpha fr.Element) {
	ch := utils.NewChannel("mimc", transcriptLabel)
	ch.Send(execution[:])
	ch.Send(scan[:])
	gamma = ch.ReceiveFieldElement()
	alpha = ch.ReceiveFieldElement()
	return gamma, alpha
}

// MultisetHolds checks h_IS·h_WS = h_RS·h_FS
func MultisetHolds(hIS, hWS, hRS, hFS fr.Element) bool {
	var l, r fr.Element
	l.Mul(&hIS, &hWS)
	r.Mul(&hRS, &hFS)
	return l.Equal(&r)
}

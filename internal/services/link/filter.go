package link

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// synProgram accepts unfragmented Ethernet/IPv4/TCP frames with SYN set.
var synProgram = []bpf.Instruction{
	// EtherType must be IPv4.
	bpf.LoadAbsolute{Off: 12, Size: 2},
	bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x0800, SkipTrue: 8},
	// IP protocol must be TCP.
	bpf.LoadAbsolute{Off: 23, Size: 1},
	bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 6, SkipTrue: 6},
	// First fragment only.
	bpf.LoadAbsolute{Off: 20, Size: 2},
	bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 4},
	// X = IP header length; TCP flags sit 13 bytes into the TCP header.
	bpf.LoadMemShift{Off: 14},
	bpf.LoadIndirect{Off: 14 + 13, Size: 1},
	bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x02, SkipFalse: 1},
	bpf.RetConstant{Val: 0x40000},
	bpf.RetConstant{Val: 0},
}

// SYNFilter assembles the capture filter attached to passive sockets.
func SYNFilter() ([]bpf.RawInstruction, error) {
	raw, err := bpf.Assemble(synProgram)
	if err != nil {
		return nil, fmt.Errorf("assembling SYN filter: %w", err)
	}
	return raw, nil
}

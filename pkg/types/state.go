package types

import (
	"fmt"
	"math/bits"
	"strings"
)

// Raw scheduler state codes as found in a task's state word.
const (
	TaskRunning         int64 = 0x0000
	TaskInterruptible   int64 = 0x0001
	TaskUninterruptible int64 = 0x0002
	TaskStopped         int64 = 0x0004
	TaskTraced          int64 = 0x0008
	ExitDead            int64 = 0x0010
	ExitZombie          int64 = 0x0020
	TaskParked          int64 = 0x0040
	TaskDead            int64 = 0x0080
	TaskWakekill        int64 = 0x0100
	TaskNoload          int64 = 0x0400
	TaskIdle                  = TaskUninterruptible | TaskNoload
)

var stateNames = []struct {
	bit  int64
	name string
}{
	{TaskInterruptible, "sleeping"},
	{TaskUninterruptible, "disk-sleep"},
	{TaskStopped, "stopped"},
	{TaskTraced, "tracing-stop"},
	{ExitDead, "dead"},
	{ExitZombie, "zombie"},
	{TaskParked, "parked"},
	{TaskDead, "task-dead"},
	{TaskWakekill, "wakekill"},
	{TaskNoload, "noload"},
}

// StateName renders a raw state code for humans.
func StateName(state int64) string {
	switch state {
	case TaskRunning:
		return "running"
	case TaskIdle:
		return "idle"
	}
	if state < 0 {
		return fmt.Sprintf("unknown(%d)", state)
	}
	var parts []string
	rest := state
	for _, s := range stateNames {
		if state&s.bit != 0 {
			parts = append(parts, s.name)
			rest &^= s.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", rest))
	}
	return strings.Join(parts, "|")
}

// wordIs64 is 1 on 64-bit hosts and 0 on 32-bit ones.
const wordIs64 = bits.UintSize / 64

// Call numbers of the two operations in the host syscall table: 549 and 550
// on 64-bit hosts, 440 and 441 on 32-bit ones.
const (
	SysArrayStats       int64 = 440 + wordIs64*(549-440)
	SysProcessAncestors int64 = SysArrayStats + 1
)

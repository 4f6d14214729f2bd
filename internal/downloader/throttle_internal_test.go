package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressThrottlePercentStep(t *testing.T) {
	// 100 MiB total: 1% beats the 512 KiB floor, step is 1 MiB.
	th := newProgressThrottle(100 << 20)
	assert.False(t, th.add(512<<10))
	assert.True(t, th.add(512<<10))
	assert.False(t, th.add(1))
}

func TestProgressThrottleFloorStep(t *testing.T) {
	// 1 MiB total: 1% would be ~10 KiB, the 512 KiB floor wins.
	th := newProgressThrottle(1 << 20)
	assert.False(t, th.add(256<<10))
	assert.True(t, th.add(256<<10))
}

func TestProgressThrottleUnknownTotal(t *testing.T) {
	th := newProgressThrottle(-1)
	assert.True(t, th.add(1))
	assert.True(t, th.add(1))

	th = newProgressThrottle(0)
	assert.True(t, th.add(10))
}

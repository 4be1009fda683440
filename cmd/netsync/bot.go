package main

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/energizer-project/netsync/internal/client"
	"github.com/energizer-project/netsync/internal/protocol"
)

// bot wanders a client's owned entities by sending move RPCs.
type bot struct {
	rng      *rand.Rand
	speed    float64
	interval time.Duration

	acc     time.Duration
	heading map[protocol.NetworkID]float64
	sent    uint64
}

func newBot(seed uint64, speed float64, interval time.Duration) *bot {
	return &bot{
		rng:      rand.New(rand.NewPCG(seed, seed+1)),
		speed:    speed,
		interval: interval,
		heading:  make(map[protocol.NetworkID]float64),
	}
}

// step advances the bot by delta and sends one move per owned entity
// every interval.
func (b *bot) step(c *client.Client, delta time.Duration) {
	b.acc += delta
	if b.acc < b.interval {
		return
	}
	dt := b.acc.Seconds()
	b.acc = 0

	for _, id := range c.OwnedEntities() {
		m, ok := c.Entity(id)
		if !ok {
			continue
		}
		h, ok := b.heading[id]
		if !ok {
			h = b.rng.Float64() * 2 * math.Pi
		}
		h += (b.rng.Float64() - 0.5) * math.Pi / 4
		b.heading[id] = h

		x, y := m.Entity.Position()
		x += float32(math.Cos(h) * b.speed * dt)
		y += float32(math.Sin(h) * b.speed * dt)
		if err := c.SendMove(id, x, y); err == nil {
			b.sent++
		}
	}
}

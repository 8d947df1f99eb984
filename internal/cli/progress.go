package cli

import (
	"io"
	"sync"

	"gopkg.in/cheggaaa/pb.v1"
)

// overlayBar drives a terminal progress bar from overlay callbacks. The bar
// starts on the first callback, since the total is only known then.
type overlayBar struct {
	out  io.Writer
	once sync.Once
	bar  *pb.ProgressBar
}

func newOverlayBar(out io.Writer) *overlayBar {
	return &overlayBar{out: out}
}

// update matches the overlay.Options.Progress signature.
func (b *overlayBar) update(done, total int) {
	b.once.Do(func() {
		b.bar = pb.New(total)
		b.bar.Output = b.out
		b.bar.ShowSpeed = false
		b.bar.SetMaxWidth(80)
		b.bar.Prefix("overlay ")
		b.bar.Start()
	})
	b.bar.Set(done)
}

// finish stops the bar if it was started.
func (b *overlayBar) finish() {
	if b.bar != nil {
		b.bar.Finish()
	}
}

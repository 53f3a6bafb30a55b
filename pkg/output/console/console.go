package console

import (
	"fmt"
	"io"
	"os"

	"github.com/ericogr/icm42688p-monitor/pkg/acquisition"
	"github.com/ericogr/icm42688p-monitor/pkg/output"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

// Format renders one record as a single line without the trailing newline.
// The axis labels name the units of the sample.
func Format(r acquisition.Record) string {
	ev, s := r.Event, r.Sample
	return fmt.Sprintf("offset=%d type=%s seq=%d timestamp_ns=%d temp_c=%.3f %s=%.6f,%.6f,%.6f %s=%.6f,%.6f,%.6f",
		ev.LineOffset, ev.Type, ev.SequenceNo, ev.TimestampNs, s.TemperatureC,
		s.Units.AccelLabel(), s.Accel[0], s.Accel[1], s.Accel[2],
		s.Units.GyroLabel(), s.Gyro[0], s.Gyro[1], s.Gyro[2])
}

func (c *ConsoleOutput) Publish(r acquisition.Record) error {
	_, err := fmt.Fprintln(c.w, Format(r))
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

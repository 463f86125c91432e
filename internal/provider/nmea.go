package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
)

const (
	// DefaultUERE is the user equivalent range error in meters used to turn
	// HDOP into an accuracy radius.
	DefaultUERE = 5.0

	// ProviderGPS labels readings from a satellite receiver.
	ProviderGPS = "gps"

	knotsToMPS = 0.514444
)

// NMEAOptions configure an NMEA provider.
type NMEAOptions struct {
	UERE float64
	Log  logrus.FieldLogger
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// NMEA keeps the latest fix parsed from NMEA 0183 sentences. RMC supplies
// position and speed, GGA supplies position, HDOP and altitude.
type NMEA struct {
	cache *latest
	uere  float64
	log   logrus.FieldLogger

	mu       sync.Mutex
	hdop     *float64
	altitude *float64
	speed    *float64
}

// NewNMEA creates an NMEA provider with no fix.
func NewNMEA(opts NMEAOptions) *NMEA {
	if opts.UERE <= 0 {
		opts.UERE = DefaultUERE
	}
	return &NMEA{
		cache: newLatest(opts.Now),
		uere:  opts.UERE,
		log:   logging.OrNop(opts.Log),
	}
}

// Run reads sentences from r until EOF, a read error or ctx ends.
// Unparseable lines are skipped.
func (n *NMEA) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.HandleSentence(scanner.Text()); err != nil {
			n.log.WithError(err).Debug("skipping nmea sentence")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read nmea: %w", err)
	}
	return nil
}

// HandleSentence parses one line and publishes a reading when it carries a
// valid fix. Lines not starting with '$' and other sentence types are ignored.
func (n *NMEA) HandleSentence(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return nil
		}
		speed := m.Speed * knotsToMPS
		n.mu.Lock()
		n.speed = &speed
		n.mu.Unlock()
		n.cache.publish(n.fix(m.Latitude, m.Longitude))

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return nil
		}
		hdop, alt := m.HDOP, m.Altitude
		n.mu.Lock()
		n.hdop = &hdop
		n.altitude = &alt
		n.mu.Unlock()
		n.cache.publish(n.fix(m.Latitude, m.Longitude))
	}
	return nil
}

func (n *NMEA) fix(lat, lon float64) model.RawReading {
	n.mu.Lock()
	defer n.mu.Unlock()

	r := model.RawReading{
		Latitude:  lat,
		Longitude: lon,
		Provider:  ProviderGPS,
		Mocked:    model.Bool(false),
	}
	if n.hdop != nil && *n.hdop > 0 {
		r.Accuracy = model.Float(*n.hdop * n.uere)
	}
	if n.altitude != nil {
		r.Altitude = model.Float(*n.altitude)
	}
	if n.speed != nil {
		r.Speed = model.Float(*n.speed)
	}
	return r
}

// CurrentSample returns the cached fix if it satisfies opts.MaxAge, or waits
// for the next one until opts.Timeout or ctx ends.
func (n *NMEA) CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error) {
	return n.cache.current(ctx, opts)
}

// Subscribe calls fn for every new fix until ctx ends or the subscription
// is cancelled.
func (n *NMEA) Subscribe(ctx context.Context, fn WatchFunc, _ model.AcquireOptions) (Subscription, error) {
	return n.cache.subscribe(ctx, fn), nil
}

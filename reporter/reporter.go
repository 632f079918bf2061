// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package reporter publishes finished-analysis reports to downstream
// consumers, by default a RabbitMQ exchange.
package reporter

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/DCSO/vxcube-go/api"

	"github.com/NeowayLabs/wabbit"
	origamqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// ClientID is a unique string identifier for the submitting host.
var ClientID string

func init() {
	var err error
	ClientID, err = getClientID()
	if err != nil {
		log.Fatal(err)
	}
}

func getClientID() (string, error) {
	if _, err := os.Stat("/etc/machine-id"); os.IsNotExist(err) {
		return os.Hostname()
	}
	b, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return os.Hostname()
	}
	return strings.TrimSpace(string(b)), nil
}

const amqpReconnDelay = 2 * time.Second

// TaskResult is the per-task slice of a report.
type TaskResult struct {
	TaskID        int            `json:"task_id"`
	Platform      string         `json:"platform"`
	Status        api.TaskStatus `json:"status"`
	Maliciousness int            `json:"maliciousness"`
	Verdict       string         `json:"verdict,omitempty"`
}

// Report is the JSON document published for one finished analysis.
type Report struct {
	AnalysisID api.AnalysisID `json:"analysis_id"`
	SampleID   int            `json:"sample_id"`
	SHA1       string         `json:"sha1"`
	ClientID   string         `json:"client_id"`
	Time       time.Time      `json:"time"`
	Tasks      []TaskResult   `json:"tasks"`
}

// BuildReport assembles the report document for an analysis snapshot.
func BuildReport(a *api.Analysis) Report {
	r := Report{
		AnalysisID: a.ID,
		SampleID:   a.SampleID,
		SHA1:       a.SHA1,
		ClientID:   ClientID,
		Time:       time.Now().UTC(),
	}
	for i := range a.Tasks {
		t := &a.Tasks[i]
		r.Tasks = append(r.Tasks, TaskResult{
			TaskID:        t.ID,
			Platform:      t.PlatformCode,
			Status:        t.Status,
			Maliciousness: t.Maliciousness,
			Verdict:       t.Verdict,
		})
	}
	return r
}

// Reporter is an interface for an entity that sends report JSON to an
// endpoint.
type Reporter interface {
	Submit(jsonData []byte) error
	Finish()
}

// SubmitReport marshals and submits the report for an analysis.
func SubmitReport(r Reporter, a *api.Analysis) error {
	data, err := json.Marshal(BuildReport(a))
	if err != nil {
		return err
	}
	return r.Submit(data)
}

// AMQPReporter sends reports to a RabbitMQ exchange.
type AMQPReporter struct {
	URL              string
	User             string
	Exchange         string
	Verbose          bool
	Conn             wabbit.Conn
	Channel          wabbit.Channel
	StopReconnection chan bool
	ChanMutex        sync.Mutex
	ConnMutex        sync.Mutex
	ErrorChan        chan wabbit.Error
	Reconnector      func(string) (wabbit.Conn, string, error)
}

func reconnectOnFailure(r *AMQPReporter) {
	for {
		select {
		case <-r.StopReconnection:
			return
		case rabbitErr := <-r.ErrorChan:
			if rabbitErr != nil {
				log.Warnf("RabbitMQ connection failed: %s", rabbitErr.Reason())
				for {
					time.Sleep(amqpReconnDelay)
					connErr := r.connect()
					if connErr != nil {
						log.Warnf("RabbitMQ error: %s", connErr)
					} else {
						log.Infof("Reestablished connection to %s", r.URL)
						r.ConnMutex.Lock()
						r.Conn.NotifyClose(r.ErrorChan)
						r.ConnMutex.Unlock()
						break
					}
				}
			}
		}
	}
}

func (r *AMQPReporter) connect() error {
	var err error
	var exchangeType string

	r.ConnMutex.Lock()
	r.Conn, exchangeType, err = r.Reconnector(r.URL)
	r.ConnMutex.Unlock()
	if err != nil {
		return err
	}
	r.ChanMutex.Lock()
	r.Channel, err = r.Conn.Channel()
	r.ChanMutex.Unlock()
	if err != nil {
		r.ConnMutex.Lock()
		r.Conn.Close()
		r.ConnMutex.Unlock()
		return err
	}
	// The exchange type comes from the reconnector because test brokers do
	// not support all types; amqptest has no 'fanout'.
	err = r.Channel.ExchangeDeclare(
		r.Exchange,
		exchangeType,
		wabbit.Option{
			"durable":    true,
			"autoDelete": false,
			"internal":   false,
			"noWait":     false,
		},
	)
	if err != nil {
		r.ChanMutex.Lock()
		r.Channel.Close()
		r.ChanMutex.Unlock()
		r.ConnMutex.Lock()
		r.Conn.Close()
		r.ConnMutex.Unlock()
		return err
	}
	log.Debugf("Reporter established connection to %s", r.URL)

	return nil
}

// MakeAMQPReporterWithReconnector creates a new reporter connected to a
// RabbitMQ server at the given URL, using the reconnector function as a
// means to Dial() in order to obtain a Connection object.
func MakeAMQPReporterWithReconnector(amqpURI string, amqpUser string,
	amqpPass string, amqpExch string, verbose bool,
	reconnector func(string) (wabbit.Conn, string, error)) (*AMQPReporter, error) {

	myReporter := &AMQPReporter{
		URL:              "amqp://" + amqpUser + ":" + amqpPass + "@" + amqpURI + "/",
		Verbose:          verbose,
		Reconnector:      reconnector,
		User:             amqpUser,
		Exchange:         amqpExch,
		StopReconnection: make(chan bool),
	}
	if verbose {
		log.Debugf("Initial connection to %s...", myReporter.URL)
	}

	myReporter.ErrorChan = make(chan wabbit.Error)
	err := myReporter.connect()
	if err != nil {
		return nil, err
	}
	myReporter.Conn.NotifyClose(myReporter.ErrorChan)

	go reconnectOnFailure(myReporter)

	return myReporter, nil
}

// Submit sends the report payload via the registered RabbitMQ connection.
func (r *AMQPReporter) Submit(jsonData []byte) error {
	r.ChanMutex.Lock()
	err := r.Channel.Publish(
		r.Exchange,
		"vxcube", // routing key
		jsonData,
		wabbit.Option{
			"contentType": "application/json",
			"headers": origamqp.Table{
				"client_id": ClientID,
			},
		})
	r.ChanMutex.Unlock()
	if err == nil {
		if r.Verbose {
			log.Debugf("RabbitMQ submission (%s) successful", r.URL)
		}
	} else {
		log.Warnf("RabbitMQ submission not successful: %s", err.Error())
	}
	return err
}

// Finish cleans up the RMQ connection.
func (r *AMQPReporter) Finish() {
	close(r.StopReconnection)
	if r.Verbose {
		log.Debugf("Reporter closing connection...")
	}
}

// LogReporter is a Reporter that just logs report data.
type LogReporter struct {
	l *log.Entry
}

// MakeLogReporter returns a new LogReporter.
func MakeLogReporter() *LogReporter {
	return &LogReporter{
		l: log.WithFields(log.Fields{
			"reporter": "log",
		}),
	}
}

// Submit just logs the report JSON.
func (r *LogReporter) Submit(jsonData []byte) error {
	r.l.Debug(string(jsonData))
	return nil
}

// Finish is a no-op in this implementation.
func (r *LogReporter) Finish() {}

package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	FieldApp      = "app"
	FieldCategory = "category"
)

var (
	Log      *logrus.Logger
	AppLog   *logrus.Entry
	MainLog  *logrus.Entry
	CfgLog   *logrus.Entry
	TopoLog  *logrus.Entry
	AddrLog  *logrus.Entry
	ErrLog   *logrus.Entry
	WorkLog  *logrus.Entry
	TraceLog *logrus.Entry
	SimLog   *logrus.Entry
	EchoLog  *logrus.Entry
	TcpLog   *logrus.Entry
	RecLog   *logrus.Entry
)

func init() {
	Log = logrus.New()
	Log.SetOutput(os.Stderr)
	Log.SetLevel(logrus.WarnLevel)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		QuoteEmptyFields: true,
	})

	AppLog = Log.WithField(FieldApp, "ccexp")
	MainLog = AppLog.WithField(FieldCategory, "Main")
	CfgLog = AppLog.WithField(FieldCategory, "CFG")
	TopoLog = AppLog.WithField(FieldCategory, "Topo")
	AddrLog = AppLog.WithField(FieldCategory, "Addr")
	ErrLog = AppLog.WithField(FieldCategory, "ErrModel")
	WorkLog = AppLog.WithField(FieldCategory, "Workload")
	TraceLog = AppLog.WithField(FieldCategory, "Trace")
	SimLog = AppLog.WithField(FieldCategory, "Sim")
	EchoLog = AppLog.WithField(FieldCategory, "Echo")
	TcpLog = AppLog.WithField(FieldCategory, "TCP")
	RecLog = AppLog.WithField(FieldCategory, "Record")
}

// SetLogLevel changes the level of every category logger at once.
func SetLogLevel(level logrus.Level) {
	Log.SetLevel(level)
}

// ParseAndSetLevel accepts the logrus level names (debug, info, warn...).
func ParseAndSetLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	Log.SetLevel(level)
	return nil
}

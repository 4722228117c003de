package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service counters.
type Metrics struct {
	Submissions *prometheus.CounterVec
	QRIssued    prometheus.Counter
	Enrollments prometheus.Counter
	Requests    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrface_attendance_submissions_total",
			Help: "Attendance submissions by result.",
		}, []string{"result"}),
		QRIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrface_qr_issued_total",
			Help: "Check-in codes issued by lecturers.",
		}),
		Enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrface_enrollments_total",
			Help: "Face templates stored on profiles.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrface_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.Submissions, m.QRIssued, m.Enrollments, m.Requests)
	}
	return m
}

// ObserveSubmission counts one attendance result.
func (m *Metrics) ObserveSubmission(result string) {
	m.Submissions.WithLabelValues(result).Inc()
}

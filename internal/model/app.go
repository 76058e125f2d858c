package model

const (
	AppServiceName = "nginxpulse_exporter"
	NamespaceName  = "nginxpulse"
)

var versions = []string{
	"26.08",
	"26.05",
	"26.02",
}

var (
	CurrentVersion = versions[0]
)

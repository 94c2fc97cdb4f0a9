package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityScanner                      // Scanner API key or access token
	SecurityAccess                       // Access token required
)

// EndpointSecurityConfig maps gRPC methods and HTTP route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// gRPC
	"/grpc.health.v1.Health/Check":                                    SecurityPublic,
	"/grpc.health.v1.Health/Watch":                                    SecurityPublic,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo":       SecurityPublic,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo":  SecurityPublic,
	"/serialrent.v1.ScanService/Scan":                                 SecurityScanner,
	"/serialrent.v1.ScanService/ResolveTag":                           SecurityScanner,

	// HTTP routes (mux route names)
	"health":         SecurityPublic,
	"metrics":        SecurityPublic,
	"photo.upload":   SecurityPublic, // the upload URL itself is the credential
	"photo.download": SecurityPublic,
	"scan":           SecurityScanner,
	"serial.byCode":  SecurityScanner,
}

// GetSecurityLevel returns the level for a method or route; unknown ones need an access token
func GetSecurityLevel(method string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[method]; ok {
		return level
	}
	return SecurityAccess
}

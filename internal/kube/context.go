package kube

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
)

// DockerDesktopContext is the context name Docker Desktop writes into the
// kubeconfig for its built-in cluster.
const DockerDesktopContext = "docker-desktop"

// GetCurrentKubeContext retrieves the name of the currently active Kubernetes context
var GetCurrentKubeContext = func() (string, error) {
	pathOptions := clientcmd.NewDefaultPathOptions()
	if pathOptions == nil {
		return "", fmt.Errorf("failed to get default kubeconfig path options")
	}
	config, err := pathOptions.GetStartingConfig()
	if err != nil {
		return "", fmt.Errorf("failed to get starting kubeconfig: %w", err)
	}
	if config.CurrentContext == "" {
		return "", fmt.Errorf("current kubeconfig context is not set")
	}
	return config.CurrentContext, nil
}

// ResolveCluster returns cluster, or the current context when cluster is empty.
func ResolveCluster(cluster string) (string, error) {
	if cluster != "" {
		return cluster, nil
	}
	current, err := GetCurrentKubeContext()
	if err != nil {
		return "", fmt.Errorf("no cluster given and %w", err)
	}
	return current, nil
}

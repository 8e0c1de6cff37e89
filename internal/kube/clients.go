package kube

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth providers referenced from kubeconfigs
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"pfctl/pkg/logging"
)

// ClientsetProvider hands out clientsets by kubeconfig context.
type ClientsetProvider interface {
	Clientset(kubeContext string) (kubernetes.Interface, error)
}

// Clients caches REST configs and clientsets per kubeconfig context.
type Clients struct {
	mu          sync.RWMutex
	configCache map[string]*rest.Config
	clientCache map[string]kubernetes.Interface

	loadRESTConfig func(kubeContext string) (*rest.Config, error)
	newClientset   func(cfg *rest.Config) (kubernetes.Interface, error)
}

// NewClients returns an empty cache backed by the default kubeconfig loading rules.
func NewClients() *Clients {
	return &Clients{
		configCache:    make(map[string]*rest.Config),
		clientCache:    make(map[string]kubernetes.Interface),
		loadRESTConfig: restConfigForContext,
		newClientset: func(cfg *rest.Config) (kubernetes.Interface, error) {
			return kubernetes.NewForConfig(cfg)
		},
	}
}

func restConfigForContext(kubeContext string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	restConfig.Timeout = 30 * time.Second
	return restConfig, nil
}

// RESTConfig returns the REST config for kubeContext.
func (c *Clients) RESTConfig(kubeContext string) (*rest.Config, error) {
	c.mu.RLock()
	cfg, ok := c.configCache[kubeContext]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := c.loadRESTConfig(kubeContext)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.configCache[kubeContext]; ok {
		return cached, nil
	}
	c.configCache[kubeContext] = cfg
	return cfg, nil
}

// Clientset returns the clientset for kubeContext.
func (c *Clients) Clientset(kubeContext string) (kubernetes.Interface, error) {
	c.mu.RLock()
	cs, ok := c.clientCache[kubeContext]
	c.mu.RUnlock()
	if ok {
		return cs, nil
	}

	cfg, err := c.RESTConfig(kubeContext)
	if err != nil {
		return nil, err
	}
	cs, err = c.newClientset(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset for context %q: %w", kubeContext, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.clientCache[kubeContext]; ok {
		return cached, nil
	}
	c.clientCache[kubeContext] = cs
	logging.Debug("KubeClients", "Created clientset for context %s", kubeContext)
	return cs, nil
}

// Forget drops the cached config and clientset for kubeContext, e.g. after
// the kubeconfig was refreshed.
func (c *Clients) Forget(kubeContext string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.configCache, kubeContext)
	delete(c.clientCache, kubeContext)
}

package kube

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Target kinds understood by Discovery.
const (
	KindPod     = "pod"
	KindService = "service"
)

// Discovery answers the questions the lifecycle controller asks of a
// cluster: which container port does a target expose, and which pods back a
// service.
type Discovery struct {
	clients ClientsetProvider
}

// NewDiscovery creates a Discovery using clients.
func NewDiscovery(clients ClientsetProvider) *Discovery {
	return &Discovery{clients: clients}
}

// BackingPods returns the names of the pods selected by the service, ready
// pods first. Pods that have finished are left out.
func (d *Discovery) BackingPods(ctx context.Context, cluster, namespace, service string) ([]string, error) {
	clientset, err := d.clients.Clientset(cluster)
	if err != nil {
		return nil, err
	}

	svc, err := clientset.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get service %s/%s: %w", namespace, service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return nil, fmt.Errorf("service %s/%s has no selector, cannot find backing pods", namespace, service)
	}

	selector := labels.SelectorFromSet(svc.Spec.Selector)
	podList, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods for service %s/%s: %w", namespace, service, err)
	}

	pods := make([]corev1.Pod, 0, len(podList.Items))
	for _, pod := range podList.Items {
		if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
			continue
		}
		pods = append(pods, pod)
	}
	sort.SliceStable(pods, func(i, j int) bool {
		return podRank(&pods[i]) < podRank(&pods[j])
	})

	names := make([]string, 0, len(pods))
	for _, pod := range pods {
		names = append(names, pod.Name)
	}
	return names, nil
}

// podRank orders ready pods before running ones before the rest.
func podRank(pod *corev1.Pod) int {
	if pod.Status.Phase != corev1.PodRunning {
		return 2
	}
	if !isPodReady(pod) {
		return 1
	}
	return 0
}

func isPodReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// ContainerPort resolves port on the pod or service named by kind/name to a
// numeric container port. It returns 0 when the port cannot be resolved;
// errors are reserved for failed API calls.
func (d *Discovery) ContainerPort(ctx context.Context, cluster, namespace, kind, name, port string) (int, error) {
	clientset, err := d.clients.Clientset(cluster)
	if err != nil {
		return 0, err
	}

	switch kind {
	case KindPod:
		pod, err := clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to get pod %s/%s: %w", namespace, name, err)
		}
		return ResolveContainerPort(pod.Spec.Containers, port), nil

	case KindService:
		svc, err := clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to get service %s/%s: %w", namespace, name, err)
		}
		target, ok := serviceTargetPort(svc, port)
		if !ok {
			return 0, nil
		}
		if target.Type == intstr.Int {
			return int(target.IntVal), nil
		}

		// Named target port: look it up on a backing pod.
		pods, err := d.BackingPods(ctx, cluster, namespace, name)
		if err != nil {
			return 0, err
		}
		if len(pods) == 0 {
			return 0, nil
		}
		pod, err := clientset.CoreV1().Pods(namespace).Get(ctx, pods[0], metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("failed to get pod %s/%s: %w", namespace, pods[0], err)
		}
		return ResolveContainerPort(pod.Spec.Containers, target.StrVal), nil

	default:
		return 0, fmt.Errorf("unsupported resource kind %q", kind)
	}
}

// serviceTargetPort finds the service port addressed by port (its name,
// port number or target port) and returns the target port it maps to.
func serviceTargetPort(svc *corev1.Service, port string) (intstr.IntOrString, bool) {
	number, numErr := strconv.Atoi(port)
	for _, sp := range svc.Spec.Ports {
		if sp.Name != "" && sp.Name == port {
			return effectiveTargetPort(sp), true
		}
		if numErr == nil && int(sp.Port) == number {
			return effectiveTargetPort(sp), true
		}
	}
	for _, sp := range svc.Spec.Ports {
		tp := effectiveTargetPort(sp)
		if tp.String() == port {
			return tp, true
		}
	}
	return intstr.IntOrString{}, false
}

func effectiveTargetPort(sp corev1.ServicePort) intstr.IntOrString {
	// An unset target port defaults to the service port.
	if sp.TargetPort.Type == intstr.Int && sp.TargetPort.IntVal == 0 {
		return intstr.FromInt32(sp.Port)
	}
	return sp.TargetPort
}

// ResolveContainerPort maps port to a container port number. Numeric strings
// pass through, names resolve to the first container port with that name,
// anything else yields 0.
func ResolveContainerPort(containers []corev1.Container, port string) int {
	if n, err := strconv.Atoi(port); err == nil {
		if n <= 0 || n > 65535 {
			return 0
		}
		return n
	}
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.Name == port {
				return int(p.ContainerPort)
			}
		}
	}
	return 0
}

package workload

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"smfoperator/pkg/core"
)

// KubernetesOptions identify the objects that make up one SMF workload.
type KubernetesOptions struct {
	Namespace string
	Name      string
	Image     string
	SBIPort   int32
	// Owner, when set, becomes the controller reference of every managed object.
	Owner  client.Object
	Scheme *runtime.Scheme
}

// Kubernetes runs the SMF as a Deployment that mounts the rendered configuration from a
// ConfigMap and the TLS material from a Secret. A restart is a change of the pod template
// checksum annotation.
type Kubernetes struct {
	client client.Client
	opts   KubernetesOptions
}

var _ Handle = &Kubernetes{}

// NewKubernetes returns a Handle that manages the workload through kubeClient.
func NewKubernetes(kubeClient client.Client, opts KubernetesOptions) *Kubernetes {
	if opts.SBIPort == 0 {
		opts.SBIPort = core.SBIPort
	}
	return &Kubernetes{client: kubeClient, opts: opts}
}

// ConfigMapName is the name of the ConfigMap holding the rendered configuration.
func ConfigMapName(name string) string { return name + "-config" }

// TLSSecretName is the name of the Secret holding the workload certificate.
func TLSSecretName(name string) string { return name + "-tls" }

func (k *Kubernetes) key(name string) types.NamespacedName {
	return types.NamespacedName{Namespace: k.opts.Namespace, Name: name}
}

func (k *Kubernetes) labels() map[string]string {
	return map[string]string{
		core.ManagedLabel:  "true",
		core.InstanceLabel: k.opts.Name,
	}
}

func (k *Kubernetes) CanConnect(ctx context.Context) bool {
	var deployment appsv1.Deployment
	err := k.client.Get(ctx, k.key(k.opts.Name), &deployment)
	return err == nil || apierrors.IsNotFound(err)
}

// StorageAttached is always true: the configuration volume is created together with the
// Deployment.
func (k *Kubernetes) StorageAttached(context.Context) bool { return true }

func (k *Kubernetes) AppliedChecksum(ctx context.Context) (string, error) {
	var deployment appsv1.Deployment
	if err := k.client.Get(ctx, k.key(k.opts.Name), &deployment); err != nil {
		if apierrors.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("get deployment: %w", err)
	}
	return deployment.Spec.Template.Annotations[core.ChecksumAnnotation], nil
}

func (k *Kubernetes) Push(ctx context.Context, rendered core.RenderedConfig) error {
	configData := map[string]string{}
	tlsData := map[string][]byte{}
	for filePath, content := range rendered.Files {
		switch path.Dir(filePath) {
		case core.ConfigDir:
			configData[path.Base(filePath)] = string(content)
		case core.CertsDir:
			tlsData[path.Base(filePath)] = append([]byte(nil), content...)
		default:
			return fmt.Errorf("no volume for %s", filePath)
		}
	}

	size := core.CheckConfigMapSize(configData)
	if size.Block {
		return fmt.Errorf("rendered configuration is %d bytes, above the ConfigMap limit of %d", size.Bytes, core.ConfigMapSizeLimitBytes)
	}

	if err := k.upsertConfigMap(ctx, configData); err != nil {
		return err
	}
	if len(tlsData) > 0 {
		if err := k.upsertSecret(ctx, tlsData); err != nil {
			return err
		}
	}
	return k.ensureService(ctx)
}

func (k *Kubernetes) Restart(ctx context.Context, rendered core.RenderedConfig) error {
	return k.ensureDeployment(ctx, rendered, true)
}

func (k *Kubernetes) Replan(ctx context.Context, rendered core.RenderedConfig) error {
	return k.ensureDeployment(ctx, rendered, false)
}

func (k *Kubernetes) Running(ctx context.Context) (bool, error) {
	var deployment appsv1.Deployment
	if err := k.client.Get(ctx, k.key(k.opts.Name), &deployment); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get deployment: %w", err)
	}
	return deployment.Status.AvailableReplicas > 0, nil
}

func (k *Kubernetes) RemoveTLS(ctx context.Context) error {
	secret := corev1.Secret{ObjectMeta: metav1.ObjectMeta{Namespace: k.opts.Namespace, Name: TLSSecretName(k.opts.Name)}}
	return client.IgnoreNotFound(k.client.Delete(ctx, &secret))
}

func (k *Kubernetes) own(object client.Object) error {
	if k.opts.Owner == nil || k.opts.Scheme == nil {
		return nil
	}
	return controllerutil.SetControllerReference(k.opts.Owner, object, k.opts.Scheme)
}

func (k *Kubernetes) upsertConfigMap(ctx context.Context, data map[string]string) error {
	configMap := corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Namespace: k.opts.Namespace, Name: ConfigMapName(k.opts.Name)}}
	_, err := controllerutil.CreateOrUpdate(ctx, k.client, &configMap, func() error {
		configMap.Labels = mergeLabels(configMap.Labels, k.labels())
		configMap.Data = data
		return k.own(&configMap)
	})
	if err != nil {
		return fmt.Errorf("upsert configmap: %w", err)
	}
	return nil
}

func (k *Kubernetes) upsertSecret(ctx context.Context, data map[string][]byte) error {
	secret := corev1.Secret{ObjectMeta: metav1.ObjectMeta{Namespace: k.opts.Namespace, Name: TLSSecretName(k.opts.Name)}}
	_, err := controllerutil.CreateOrUpdate(ctx, k.client, &secret, func() error {
		secret.Labels = mergeLabels(secret.Labels, k.labels())
		secret.Type = corev1.SecretTypeOpaque
		secret.Data = data
		return k.own(&secret)
	})
	if err != nil {
		return fmt.Errorf("upsert tls secret: %w", err)
	}
	return nil
}

func (k *Kubernetes) ensureService(ctx context.Context) error {
	service := corev1.Service{ObjectMeta: metav1.ObjectMeta{Namespace: k.opts.Namespace, Name: k.opts.Name}}
	_, err := controllerutil.CreateOrUpdate(ctx, k.client, &service, func() error {
		service.Labels = mergeLabels(service.Labels, k.labels())
		if service.Annotations == nil {
			service.Annotations = map[string]string{}
		}
		service.Annotations[core.ScrapeAnnotation] = "true"
		service.Annotations[core.ScrapePortAnnotation] = fmt.Sprint(core.PrometheusPort)
		service.Spec.Selector = k.labels()
		service.Spec.Ports = servicePorts(k.opts.SBIPort)
		return k.own(&service)
	})
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

// ensureDeployment converges the Deployment. With restart the pod template carries the new
// checksum, which rolls the pods; otherwise an existing checksum is preserved.
func (k *Kubernetes) ensureDeployment(ctx context.Context, rendered core.RenderedConfig, restart bool) error {
	deployment := appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Namespace: k.opts.Namespace, Name: k.opts.Name}}
	_, err := controllerutil.CreateOrUpdate(ctx, k.client, &deployment, func() error {
		checksum := deployment.Spec.Template.Annotations[core.ChecksumAnnotation]
		if restart || checksum == "" {
			checksum = rendered.Checksum
		}
		deployment.Labels = mergeLabels(deployment.Labels, k.labels())
		replicas := int32(1)
		deployment.Spec.Replicas = &replicas
		deployment.Spec.Selector = &metav1.LabelSelector{MatchLabels: k.labels()}
		deployment.Spec.Strategy = appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType}
		deployment.Spec.Template = k.podTemplate(rendered, checksum)
		return k.own(&deployment)
	})
	if err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

func (k *Kubernetes) podTemplate(rendered core.RenderedConfig, checksum string) corev1.PodTemplateSpec {
	optional := true
	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels:      k.labels(),
			Annotations: map[string]string{core.ChecksumAnnotation: checksum},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:    core.ServiceName,
				Image:   k.opts.Image,
				Command: strings.Fields(rendered.Command),
				Env:     containerEnv(rendered.Environment),
				Ports:   containerPorts(k.opts.SBIPort),
				VolumeMounts: []corev1.VolumeMount{
					{Name: "config", MountPath: core.ConfigDir, ReadOnly: true},
					{Name: "certs", MountPath: core.CertsDir, ReadOnly: true},
				},
			}},
			Volumes: []corev1.Volume{{
				Name: "config",
				VolumeSource: corev1.VolumeSource{ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: ConfigMapName(k.opts.Name)},
				}},
			}, {
				Name: "certs",
				VolumeSource: corev1.VolumeSource{Secret: &corev1.SecretVolumeSource{
					SecretName: TLSSecretName(k.opts.Name),
					Optional:   &optional,
				}},
			}},
		},
	}
}

// containerEnv renders the environment sorted by name; POD_IP comes from the downward API.
func containerEnv(environment map[string]string) []corev1.EnvVar {
	names := make([]string, 0, len(environment))
	for name := range environment {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make([]corev1.EnvVar, 0, len(names))
	for _, name := range names {
		if name == "POD_IP" {
			env = append(env, corev1.EnvVar{Name: name, ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "status.podIP"},
			}})
			continue
		}
		env = append(env, corev1.EnvVar{Name: name, Value: environment[name]})
	}
	return env
}

func containerPorts(sbiPort int32) []corev1.ContainerPort {
	return []corev1.ContainerPort{
		{Name: "sbi", ContainerPort: sbiPort, Protocol: corev1.ProtocolTCP},
		{Name: "pfcp", ContainerPort: core.PFCPPort, Protocol: corev1.ProtocolUDP},
		{Name: "prometheus-exporter", ContainerPort: core.PrometheusPort, Protocol: corev1.ProtocolTCP},
	}
}

func servicePorts(sbiPort int32) []corev1.ServicePort {
	return []corev1.ServicePort{
		{Name: "sbi", Port: sbiPort, TargetPort: intstr.FromInt32(sbiPort), Protocol: corev1.ProtocolTCP},
		{Name: "pfcp", Port: core.PFCPPort, TargetPort: intstr.FromInt32(core.PFCPPort), Protocol: corev1.ProtocolUDP},
		{Name: "prometheus-exporter", Port: core.PrometheusPort, TargetPort: intstr.FromInt32(core.PrometheusPort), Protocol: corev1.ProtocolTCP},
	}
}

func mergeLabels(existing, required map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(required))
	for key, value := range existing {
		out[key] = value
	}
	for key, value := range required {
		out[key] = value
	}
	return out
}

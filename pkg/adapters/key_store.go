package adapters

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"smfoperator/pkg/certificates"
	"smfoperator/pkg/core"
)

// Secret keys of the persisted certificate material.
const (
	privateKeyKey  = "tls.key"
	requestKey     = "tls.csr"
	certificateKey = "tls.crt"
)

// SecretKeyStore persists the private key, CSR and certificate of an SMF instance in a Secret.
type SecretKeyStore struct {
	client    client.Client
	namespace string
	instance  string
	owner     client.Object
	scheme    *runtime.Scheme
}

var _ certificates.Store = &SecretKeyStore{}

// NewSecretKeyStore returns a Store writing to the Secret <instance>-csr-key. When owner and scheme
// are set the Secret is garbage collected together with the owner.
func NewSecretKeyStore(kubeClient client.Client, namespace, instance string, owner client.Object, scheme *runtime.Scheme) *SecretKeyStore {
	return &SecretKeyStore{client: kubeClient, namespace: namespace, instance: instance, owner: owner, scheme: scheme}
}

// KeySecretName is the name of the Secret holding the certificate material.
func KeySecretName(instance string) string { return instance + "-csr-key" }

func (store *SecretKeyStore) Load(ctx context.Context) (certificates.Material, bool, error) {
	var secret corev1.Secret

	if err := store.client.Get(ctx, types.NamespacedName{Namespace: store.namespace, Name: KeySecretName(store.instance)}, &secret); err != nil {
		if apierrors.IsNotFound(err) {
			return certificates.Material{}, false, nil
		}
		return certificates.Material{}, false, fmt.Errorf("get key secret: %w", err)
	}

	return certificates.Material{
		PrivateKey:  secret.Data[privateKeyKey],
		CSR:         secret.Data[requestKey],
		Certificate: secret.Data[certificateKey],
	}, true, nil
}

func (store *SecretKeyStore) Save(ctx context.Context, material certificates.Material) error {
	secret := corev1.Secret{ObjectMeta: metav1.ObjectMeta{Namespace: store.namespace, Name: KeySecretName(store.instance)}}

	_, err := controllerutil.CreateOrUpdate(ctx, store.client, &secret, func() error {
		if secret.Labels == nil {
			secret.Labels = map[string]string{}
		}
		secret.Labels[core.ManagedLabel] = "true"
		secret.Labels[core.InstanceLabel] = store.instance
		secret.Type = corev1.SecretTypeOpaque
		secret.Data = map[string][]byte{
			privateKeyKey: material.PrivateKey,
			requestKey:    material.CSR,
		}
		if len(material.Certificate) > 0 {
			secret.Data[certificateKey] = material.Certificate
		}
		if store.owner == nil || store.scheme == nil {
			return nil
		}
		return controllerutil.SetControllerReference(store.owner, &secret, store.scheme)
	})
	if err != nil {
		return fmt.Errorf("save key secret: %w", err)
	}
	return nil
}

func (store *SecretKeyStore) Delete(ctx context.Context) error {
	secret := corev1.Secret{ObjectMeta: metav1.ObjectMeta{Namespace: store.namespace, Name: KeySecretName(store.instance)}}
	return client.IgnoreNotFound(store.client.Delete(ctx, &secret))
}

package compute

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"

	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

const (
	DefaultStartTimeout  = 15 * time.Minute
	DefaultPollFrequency = 15 * time.Second
)

// AzureConfig holds the credential and polling parameters of the Azure provider
type AzureConfig struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string

	// StartTimeout bounds the wait for a start operation to reach a terminal state
	StartTimeout  time.Duration
	PollFrequency time.Duration
}

// HasClientSecret reports whether a full service principal is configured
func (c AzureConfig) HasClientSecret() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

type startPoller interface {
	PollUntilDone(ctx context.Context, options *runtime.PollUntilDoneOptions) (armcompute.VirtualMachinesClientStartResponse, error)
}

// virtualMachinesAPI is the subset of armcompute.VirtualMachinesClient the provider needs
type virtualMachinesAPI interface {
	InstanceView(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientInstanceViewOptions) (armcompute.VirtualMachinesClientInstanceViewResponse, error)
	BeginStart(ctx context.Context, resourceGroupName string, vmName string) (startPoller, error)
}

type armVirtualMachines struct {
	client *armcompute.VirtualMachinesClient
}

func (a *armVirtualMachines) InstanceView(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientInstanceViewOptions) (armcompute.VirtualMachinesClientInstanceViewResponse, error) {
	return a.client.InstanceView(ctx, resourceGroupName, vmName, options)
}

func (a *armVirtualMachines) BeginStart(ctx context.Context, resourceGroupName string, vmName string) (startPoller, error) {
	poller, err := a.client.BeginStart(ctx, resourceGroupName, vmName, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

type azureProvider struct {
	vms           virtualMachinesAPI
	startTimeout  time.Duration
	pollFrequency time.Duration
	logger        logging.Logger
}

// NewAzureProvider authenticates with a client secret when one is configured,
// otherwise with the default Azure credential chain (managed identity, CLI, ...)
func NewAzureProvider(config AzureConfig, logger logging.Logger) (Provider, error) {
	if config.SubscriptionID == "" {
		return nil, errors.NewConfigurationError("subscription id is required", nil)
	}

	var credential azcore.TokenCredential
	var err error
	if config.HasClientSecret() {
		logger.Infof("Using client secret credential, tenant: %s, client: %s", config.TenantID, config.ClientID)
		credential, err = azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	} else {
		logger.Infof("Client secret not configured, using default Azure credential chain")
		credential, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create Azure credential", err)
	}

	client, err := armcompute.NewVirtualMachinesClient(config.SubscriptionID, credential, nil)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create virtual machines client", err).
			WithContext("subscription_id", config.SubscriptionID)
	}

	return newAzureProvider(&armVirtualMachines{client: client}, config, logger), nil
}

func newAzureProvider(vms virtualMachinesAPI, config AzureConfig, logger logging.Logger) *azureProvider {
	startTimeout := config.StartTimeout
	if startTimeout <= 0 {
		startTimeout = DefaultStartTimeout
	}
	pollFrequency := config.PollFrequency
	if pollFrequency <= 0 {
		pollFrequency = DefaultPollFrequency
	}
	return &azureProvider{
		vms:           vms,
		startTimeout:  startTimeout,
		pollFrequency: pollFrequency,
		logger:        logger,
	}
}

func (p *azureProvider) InstanceStatuses(ctx context.Context, target Target) ([]StatusRecord, error) {
	response, err := p.vms.InstanceView(ctx, target.ResourceGroup, target.VMName, nil)
	if err != nil {
		return nil, wrapAzureError("failed to read instance view", err, target)
	}

	records := make([]StatusRecord, 0, len(response.Statuses))
	for _, status := range response.Statuses {
		if status == nil {
			continue
		}
		code := ""
		if status.Code != nil {
			code = *status.Code
		}
		records = append(records, StatusRecord{Code: code})
	}
	return records, nil
}

func (p *azureProvider) BeginStart(ctx context.Context, target Target) (StartOperation, error) {
	poller, err := p.vms.BeginStart(ctx, target.ResourceGroup, target.VMName)
	if err != nil {
		return nil, wrapAzureError("start command rejected", err, target)
	}
	p.logger.Debugf("Start command accepted, target: %s", target)
	return &azureStartOperation{
		poller:    poller,
		target:    target,
		timeout:   p.startTimeout,
		frequency: p.pollFrequency,
	}, nil
}

type azureStartOperation struct {
	poller    startPoller
	target    Target
	timeout   time.Duration
	frequency time.Duration
}

func (o *azureStartOperation) Wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	_, err := o.poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: o.frequency})
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError("start operation did not finish in time", err).
			WithContext("target", o.target.String()).
			WithContext("timeout", o.timeout.String())
	}
	return wrapAzureError("start operation failed", err, o.target)
}

func wrapAzureError(message string, err error, target Target) *errors.DomainError {
	domainErr := errors.NewProviderError(message, err).WithContext("target", target.String())
	var responseErr *azcore.ResponseError
	if stderrors.As(err, &responseErr) {
		domainErr.WithContext("status_code", responseErr.StatusCode)
		if responseErr.ErrorCode != "" {
			domainErr.WithContext("error_code", responseErr.ErrorCode)
		}
	}
	return domainErr
}

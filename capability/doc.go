// Package capability checks a model call's requirements against the model's
// declared capabilities before the call is made.
//
//	req := capability.DeriveRequestRequirements(messages, capability.RequestOptions{CallOptions: opts}, estimate)
//	caps, _ := capability.BuiltinCatalog().Lookup("gpt-5.2")
//	if err := capability.ValidateRequestAgainstCapabilities("gpt-5.2", req, caps); err != nil {
//	    var capErr *capability.CapabilityError
//	    errors.As(err, &capErr) // capErr.Errors lists every violation
//	}
package capability

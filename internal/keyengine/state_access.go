package keyengine

// stateFor returns the keyModelState for (key, model), creating it
// with zeroed fields on first reference (spec §3 Lifecycle). Callers
// must hold Engine's mutex.
func (e *Engine) stateFor(key Key, model Model) *keyModelState {
	models, ok := e.usage[key]
	if !ok {
		models = make(map[Model]*keyModelState)
		e.usage[key] = models
	}
	st, ok := models[model]
	if !ok {
		st = &keyModelState{}
		models[model] = st
	}
	return st
}

// modelConfig returns the configured parameters for model, or a
// zero-value ModelConfig if unknown (callers guard against unknown
// models before reaching here in normal operation).
func (e *Engine) modelConfig(model Model) ModelConfig {
	return e.modelConfigs[model]
}
